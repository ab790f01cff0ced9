package config

import "errors"

var (
	ErrFileNotFound   = errors.New("config file not found")
	ErrFileRead       = errors.New("cannot read config file")
	ErrInvalid        = errors.New("invalid config file")
	ErrPageSize       = errors.New("page_size must be between 1 and 500")
	ErrStateDirEmpty  = errors.New("state_dir cannot be empty")
	ErrBackend        = errors.New("state_backend must be file, sqlite or memory")
	ErrTimeout        = errors.New("request_timeout must be a positive duration")
	ErrLogLevel       = errors.New("log_level must be debug, info, warn or error")
	ErrBoardFieldName = errors.New("board_field cannot be empty")
)
