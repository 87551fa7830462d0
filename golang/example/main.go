package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/viant/borrowck/export"
	"github.com/viant/borrowck/golang"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: example <file.go> [output-dir]")
		return
	}
	sourcePath := os.Args[1]
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		fmt.Printf("Error reading %v: %v\n", sourcePath, err)
		return
	}

	ctx := context.Background()
	module := golang.ModulePath(ctx, filepath.Dir(sourcePath))

	procedures, err := golang.Load(source, filepath.Base(sourcePath), module)
	if err != nil {
		fmt.Printf("Error loading %v: %v\n", sourcePath, err)
		return
	}

	for _, procedure := range procedures {
		result, err := procedure.Analyze()
		if err != nil {
			fmt.Printf("Error analyzing %v: %v\n", procedure.Name, err)
			return
		}
		if !result.Analyzed() {
			fmt.Printf("Not analyzed: %v: %v\n", procedure.Name, result.Unsupported)
			continue
		}
		for _, exit := range procedure.Body.Exits() {
			state := result.Exit[exit]
			if state == nil || state.Len() == 0 {
				continue
			}
			snapshot := export.FromGraph(state)
			fmt.Printf("%v at %v: %d nodes, %d edges\n",
				procedure.Name, exit, len(snapshot.Nodes), len(snapshot.Edges))
			fmt.Println(snapshot.DOT())

			if len(os.Args) > 2 {
				target := filepath.Join(os.Args[2], fmt.Sprintf("%v_%v.yaml", filepath.Base(procedure.Name), exit))
				if err := export.Save(ctx, target, snapshot); err != nil {
					fmt.Printf("Error storing snapshot: %v\n", err)
					return
				}
				fmt.Printf("Stored snapshot: %v\n", target)
			}
		}
	}
}
