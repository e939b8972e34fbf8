package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
)

// cmdValidate checks an exercise file and lists every structural problem
func cmdValidate(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("exercise file required (e.g., jack validate fractions.yaml)")
	}
	path := args[0]

	ex, err := exercise.LoadExerciseFile(path)
	if err != nil {
		problems := flatten(err)
		fmt.Printf("%s: %d problem(s)\n", path, len(problems))
		for _, p := range problems {
			fmt.Printf("  - %v\n", p)
		}
		return fmt.Errorf("%s is not valid", path)
	}

	fmt.Printf("%s: ok (%d stages)\n", path, ex.StageCount())
	if unreachable := ex.UnreachableStages(); len(unreachable) > 0 {
		fmt.Printf("  warning: unreachable stages: %s\n", strings.Join(names(unreachable), ", "))
	}
	if len(ex.EndStages()) == 0 {
		fmt.Println("  warning: no end stage")
	}
	return nil
}

// cmdWeights prints the suffix weight of every stage
func cmdWeights(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("exercise file required (e.g., jack weights fractions.yaml)")
	}
	ex, err := exercise.LoadExerciseFile(args[0])
	if err != nil {
		return err
	}

	weights := ex.SuffixWeights()
	start, _ := ex.StartStage()

	fmt.Printf("Suffix weights: %s\n", ex.Meta.Name)
	fmt.Println(strings.Repeat("=", 16+len(ex.Meta.Name)))
	for _, s := range ex.Stages() {
		marker := " "
		if start != nil && s.ID() == start.ID() {
			marker = "*"
		}
		w, ok := weights[s.ID()]
		if !ok {
			fmt.Printf("%s %-24s weight %3d  suffix   -\n", marker, s.InternalName(), s.Weight())
			continue
		}
		fmt.Printf("%s %-24s weight %3d  suffix %3d\n", marker, s.InternalName(), s.Weight(), w)
	}
	return nil
}

// cmdPaths lists the suffix paths from a stage, heaviest first
func cmdPaths(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("exercise file required (e.g., jack paths fractions.yaml [stage])")
	}
	ex, err := exercise.LoadExerciseFile(args[0])
	if err != nil {
		return err
	}

	from, ok := ex.StartStage()
	if len(args) > 1 {
		from, ok = ex.StageByInternalName(args[1])
	}
	if !ok {
		return fmt.Errorf("stage %q: %w", strings.Join(args[1:], ""), domain.ErrStageNotFound)
	}

	stages := ex.Stages()
	paths := domain.SuffixPaths(stages)[from.ID()]
	sort.SliceStable(paths, func(i, j int) bool {
		return domain.PathWeight(stages, paths[i]) > domain.PathWeight(stages, paths[j])
	})

	byID := make(map[domain.StageID]string, len(stages))
	for _, s := range stages {
		byID[s.ID()] = s.InternalName()
	}

	fmt.Printf("Paths from %s (%d)\n", from.InternalName(), len(paths))
	for _, p := range paths {
		hops := make([]string, len(p))
		for i, id := range p {
			hops[i] = byID[id]
		}
		fmt.Printf("  %3d  %s\n", domain.PathWeight(stages, p), strings.Join(hops, " -> "))
	}
	return nil
}

// flatten unwraps joined errors into their parts
func flatten(err error) []error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			return joined.Unwrap()
		}
	}
	return []error{err}
}

func names(stages []*domain.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.InternalName()
	}
	return out
}
