package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"txkit/pkg/domain"
)

var (
	flagQueryAttr  string
	flagQueryValue string
)

func init() {
	queryCmd.Flags().StringVar(&flagQueryAttr, "attr", "", "only entities that have this attribute")
	queryCmd.Flags().StringVar(&flagQueryValue, "value", "", "with --attr, only entities whose value equals this (strings, integers, booleans)")
	rootCmd.AddCommand(queryCmd)
}

type entityOutput struct {
	ID         int64            `yaml:"id"`
	Attributes map[string][]any `yaml:"attributes"`
}

var queryCmd = &cobra.Command{
	Use:   "query [entity-id...]",
	Short: "Print the current facts of entities",
	Long: `Print the current facts of entities as YAML.

With no arguments every entity is printed. --attr and --value narrow the
set with a pattern query.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagQueryValue != "" && flagQueryAttr == "" {
			return fmt.Errorf("--value requires --attr")
		}
		sub, err := openSubmitter(cmd.Context())
		if err != nil {
			return err
		}
		defer closeConnection(sub.Connection())

		db := sub.Db()
		ids, err := selectEntities(db, args)
		if err != nil {
			return err
		}
		out := make([]entityOutput, 0, len(ids))
		for _, id := range ids {
			attrs := db.Entity(id)
			if len(attrs) == 0 {
				continue
			}
			out = append(out, entityOutput{ID: int64(id), Attributes: attrs})
		}
		return writeYAML(cmd.OutOrStdout(), out)
	},
}

func selectEntities(db domain.Snapshot, args []string) ([]domain.EntityID, error) {
	if len(args) > 0 {
		ids := make([]domain.EntityID, 0, len(args))
		for _, arg := range args {
			n, err := strconv.ParseInt(arg, 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid entity id %q", arg)
			}
			ids = append(ids, domain.EntityID(n))
		}
		return ids, nil
	}
	if flagQueryAttr == "" {
		return db.Entities(), nil
	}

	var v any = "_"
	if flagQueryValue != "" {
		v = "?v"
	}
	q := domain.Query{Find: []string{"?e"}, Where: []domain.Clause{domain.Pattern("?e", flagQueryAttr, v)}}
	var params []any
	if flagQueryValue != "" {
		q.In = []string{"?v"}
		params = append(params, parseScalar(flagQueryValue))
	}
	rows, err := db.Query(q, params...)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.EntityID, 0, len(rows))
	for _, row := range rows {
		if id, ok := row[0].(domain.EntityID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
