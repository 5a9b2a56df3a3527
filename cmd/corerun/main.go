// Command corerun is a thin embedder around the execution core: it
// loads a chunkfile-described compiled function and runs it to
// completion, the way the teacher's cmd/vm and cmd/compiler are bare
// drivers around the library rather than part of it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"corevm/pkg/chunkfile"
	"corevm/pkg/runtime"
	"corevm/pkg/vm"
)

func main() {
	var disasm bool
	var steps int32

	rootCmd := &cobra.Command{
		Use:   "corerun <chunk.json>",
		Short: "Run a hand-assembled or generated bytecode chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			fn, err := chunkfile.Decode(data)
			if err != nil {
				return err
			}
			if disasm {
				fmt.Fprint(os.Stdout, fn.Disassemble())
			}

			heap, global := runtime.NewStandardHeap()
			if steps > 0 {
				heap.InterruptInterval = steps
				heap.InterruptHook = func(t *vm.Thread) error {
					return fmt.Errorf("execution interrupted after %d instructions", steps)
				}
			}

			closure := vm.NewClosure(fn, global)
			thread := heap.NewCoroutine(closure, nil)

			result, err := vm.Execute(thread)
			if err != nil {
				fmt.Fprintf(os.Stderr, "uncaught: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintln(os.Stdout, result.String())
			return nil
		},
	}

	rootCmd.Flags().BoolVarP(&disasm, "disasm", "d", false, "print the disassembled chunk before running it")
	rootCmd.Flags().Int32VarP(&steps, "interrupt-every", "i", 0, "check the interrupt hook every N instructions (0 disables)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
