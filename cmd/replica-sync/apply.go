package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/syncer"
	"github.com/spf13/cobra"
)

const defaultApplyConnection = "local"

func newApplyCommand() *cobra.Command {
	var connection string
	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Reconcile a JSON file of raw records, keyed by table, into the replica",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			return applyPayload(cmd.Context(), app.syncer, connection, file, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&connection, "connection", defaultApplyConnection, "Connection key the records belong to")
	return cmd
}

type tableResult struct {
	Table  string             `json:"table"`
	Result syncer.ApplyResult `json:"result"`
}

// applyPayload applies every table of the payload in table name order and
// writes one result line per table.
func applyPayload(ctx context.Context, service *syncer.Service, connection string, input io.Reader, output io.Writer) error {
	decoder := json.NewDecoder(input)
	decoder.UseNumber()
	var payload map[string][]map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	for table := range payload {
		if _, ok := replica.LookupProjection(table); !ok {
			return fmt.Errorf("%w: %s", replica.ErrUnknownTable, table)
		}
	}

	encoder := json.NewEncoder(output)
	for _, table := range replica.Tables() {
		records, ok := payload[table]
		if !ok {
			continue
		}
		raws := make([]replica.Raw, 0, len(records))
		for _, record := range records {
			raws = append(raws, replica.Raw(record))
		}
		result, err := service.ApplyRecords(ctx, connection, table, raws)
		if err != nil {
			return err
		}
		if err := encoder.Encode(tableResult{Table: table, Result: result}); err != nil {
			return err
		}
	}
	return nil
}
