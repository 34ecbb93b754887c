package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"txkit/internal/core"
	"txkit/internal/txfile"
	"txkit/pkg/domain"
)

var (
	flagTransactAsync       bool
	flagTransactExpectBasis int64
	flagTransactTrace       bool
)

func init() {
	transactCmd.Flags().BoolVar(&flagTransactAsync, "async", false, "submit without blocking and await the pending handle")
	transactCmd.Flags().Int64Var(&flagTransactExpectBasis, "expect-basis", 0, "fail with a conflict unless the store is at this basis")
	transactCmd.Flags().BoolVar(&flagTransactTrace, "trace", false, "write a JSON span per submission to stderr")
	rootCmd.AddCommand(transactCmd)
}

type transactOutput struct {
	Tx      int64            `yaml:"tx"`
	Basis   int64            `yaml:"basis"`
	Datoms  int              `yaml:"datoms"`
	TempIDs map[string]int64 `yaml:"tempids,omitempty"`
}

var transactCmd = &cobra.Command{
	Use:   "transact <file>",
	Short: "Submit a transaction request read from a YAML or JSON file",
	Long: `Submit a transaction request read from a YAML or JSON file ("-" reads stdin).

Entities are permanent ids or named placeholders such as "#ada"; the command
prints the id each placeholder resolved to.

	Example:
	  operations:
	    - {op: assert, e: "#ada", a: person/name, v: Ada}
	    - {op: assert, e: "#grace", a: person/mentor, ref: "#ada"}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readRequest(cmd, args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("expect-basis") {
			f.Request.ExpectBasis = domain.EntityID(flagTransactExpectBasis)
		}

		ctx := cmd.Context()
		var opts []core.Option
		if flagTransactTrace {
			opts = append(opts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
		}
		sub, err := openSubmitter(ctx, opts...)
		if err != nil {
			return err
		}
		defer closeConnection(sub.Connection())

		var res domain.Result
		if flagTransactAsync {
			res, err = sub.SubmitAsync(ctx, f.Request).Await(ctx)
		} else {
			res, err = sub.Submit(ctx, f.Request)
		}
		if err != nil {
			return err
		}
		names, err := f.Names(res)
		if err != nil {
			return err
		}

		out := transactOutput{
			Tx:     int64(res.Tx()),
			Basis:  int64(res.After().Basis()),
			Datoms: len(res.Datoms()),
		}
		if len(names) > 0 {
			out.TempIDs = make(map[string]int64, len(names))
			for name, id := range names {
				out.TempIDs["#"+name] = int64(id)
			}
		}
		return writeYAML(cmd.OutOrStdout(), out)
	},
}

func readRequest(cmd *cobra.Command, path string) (txfile.File, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		file, err := os.Open(path)
		if err != nil {
			return txfile.File{}, fmt.Errorf("open request: %w", err)
		}
		defer func() { _ = file.Close() }()
		r = file
	}
	return txfile.Decode(r)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
