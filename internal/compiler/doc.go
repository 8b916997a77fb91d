// Package compiler turns CUE pipeline definitions into the declarative
// pipeline specs the registry applies.
//
// A pipeline definition declares score types, software, input files, and
// processing steps under a single struct:
//
//	pipelines: search_rescore: {
//		score_types: [{name: "XCorr", higher_better: true}]
//		software: [{name: "comet", version: "2023.01", assigned_scores: ["XCorr"]}]
//		input_files: [{path: "run1.mzML"}]
//		steps: [{id: "search", software: "comet", input_files: ["run1.mzML"], actions: ["search"]}]
//	}
//
// Compilation validates that a definition is self-contained: steps only
// use software and input files the same definition declares, and
// software only assigns declared score types. Name collisions across
// separately compiled definitions are the registry's concern, not the
// compiler's.
package compiler
