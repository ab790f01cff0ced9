// Package query turns filter/sort UI state into backend query fragments.
//
// A [FilterState] is what a screen's filter bar holds: free-text search, an
// optional sort, and a map from custom-field id to the accepted values. The
// [Translator] converts it into a [Fragment] for the graph-query backend:
//
//	{
//	  "where":  {"and": [["archived","neq",true], ["name","icontains","deck"],
//	                     {"or": [["cf_est.value","eq","Alice"], ["cf_est.value","eq","Bob"]]}]},
//	  "with":   {"cf_est": {"relation": "customFieldValues", "fieldId": "est", "select": "value"}},
//	  "sortBy": [{"field": "createdAt", "order": "DESC"}]
//	}
//
// Values within one key are OR'ed, keys are AND'ed. Translation is pure: the
// same state always yields the same fragment, and the input is never mutated.
//
// Invalid input (bad field ids, blank values, inverted ranges) never reaches
// the network. Translate drops it and logs a warning; [Translator.Validate]
// reports the same problems as an error.
//
// [Fragment.Match] evaluates a fragment locally against a record, which lets
// a screen hide entities an optimistic edit moved out of the active filter.
// [Translator.RESTValues] renders the same state as REST list parameters.
package query
