package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/opsync/pkg/collection"
	"github.com/calvinalkan/opsync/pkg/query"
)

var filterFlagNames = []string{"search", "field", "range", "sort", "reset"}

var errFilterFlag = errors.New("invalid filter flag")

func addFilterFlags(fs *flag.FlagSet) {
	fs.String("search", "", "Match names containing text (case-insensitive)")
	fs.StringArray("field", nil, "Custom field filter key=value (repeatable, values of one key are OR'd)")
	fs.StringArray("range", nil, "Custom field range key=min..max (either bound may be empty)")
	fs.String("sort", "", "Sort as field[:asc|desc]")
	fs.Bool("reset", false, "Clear the saved filter")
}

func addLoadFlags(fs *flag.FlagSet) {
	fs.Bool("all", false, "Load every page")
	fs.Int("limit", 0, "Load pages until at least N records are loaded")
}

// filterFromFlags builds a filter from the filter flags. The bool reports
// whether any filter flag was given; when none was, the saved filter applies.
func filterFromFlags(fs *flag.FlagSet) (query.FilterState, bool, error) {
	if !slices.ContainsFunc(filterFlagNames, fs.Changed) {
		return query.FilterState{}, false, nil
	}

	search, _ := fs.GetString("search")
	state := query.FilterState{}.WithSearch(search)

	fields, _ := fs.GetStringArray("field")
	grouped := make(map[string][]string)

	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return query.FilterState{}, true, fmt.Errorf("%w: --field %q: want key=value", errFilterFlag, f)
		}

		grouped[key] = append(grouped[key], value)
	}

	var err error

	for _, key := range slices.Sorted(maps.Keys(grouped)) {
		state, err = state.WithField(key, grouped[key]...)
		if err != nil {
			return query.FilterState{}, true, fmt.Errorf("--field: %w", err)
		}
	}

	ranges, _ := fs.GetStringArray("range")
	for _, r := range ranges {
		key, bounds, ok := strings.Cut(r, "=")
		lo, hi, hasSep := strings.Cut(bounds, "..")

		if !ok || !hasSep {
			return query.FilterState{}, true, fmt.Errorf("%w: --range %q: want key=min..max", errFilterFlag, r)
		}

		state, err = state.WithRange(key, query.Range{Min: lo, Max: hi})
		if err != nil {
			return query.FilterState{}, true, fmt.Errorf("--range: %w", err)
		}
	}

	if fs.Changed("sort") {
		raw, _ := fs.GetString("sort")

		var parsed query.Sort

		parsed, err = query.ParseSort(raw)
		if err != nil {
			return query.FilterState{}, true, fmt.Errorf("--sort: %w", err)
		}

		state = state.WithSort(&parsed)
	}

	return state, true, nil
}

// filterable is the part of a screen the listing commands drive.
type filterable interface {
	Open(ctx context.Context) error
	OpenWithFilter(ctx context.Context, filter query.FilterState) error
	Validate(filter query.FilterState) error
	LoadAll(ctx context.Context, limit int) error
}

// openScreen loads s with the filter flags, or the saved filter when none
// was given, then loads as many pages as the load flags ask for.
func openScreen(ctx context.Context, o *IO, s filterable, fs *flag.FlagSet) error {
	filter, changed, err := filterFromFlags(fs)
	if err != nil {
		return err
	}

	if changed {
		verr := s.Validate(filter)
		if verr != nil {
			o.Warn(verr.Error(), "the invalid part of the filter was ignored")
		}

		err = s.OpenWithFilter(ctx, filter)
	} else {
		err = s.Open(ctx)
	}

	if err != nil {
		return err
	}

	all, _ := fs.GetBool("all")
	limit, _ := fs.GetInt("limit")

	switch {
	case all:
		return s.LoadAll(ctx, 0)
	case limit > 0:
		return s.LoadAll(ctx, limit)
	}

	return nil
}

// parseAssignments parses "field=value" arguments into a change set.
func parseAssignments(args []string) (collection.Fields, error) {
	if len(args) == 0 {
		return nil, errors.New("no field=value given")
	}

	set := make(collection.Fields, len(args))

	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid assignment %q: want field=value", arg)
		}

		set[field] = value
	}

	return set, nil
}
