package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-places/pkg/voice/eventlog"
	"github.com/vango-go/vai-places/pkg/voice/eventlog/sqlitesink"
)

func newEventsCmd() *cobra.Command {
	var (
		dbPath   string
		asJSON   bool
		withBody bool
	)

	cmd := &cobra.Command{
		Use:   "events <session-id>",
		Short: "Print a persisted session event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("--event-db is required")
			}
			sink, err := sqlitesink.Open(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer sink.Close()

			records, err := sink.Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no events recorded for session %s", args[0])
			}
			if asJSON {
				return writeRecordsJSON(cmd.OutOrStdout(), records)
			}
			return writeRecords(cmd.OutOrStdout(), records, withBody)
		},
	}

	cmd.Flags().StringVar(&dbPath, "event-db", envOr("PLACES_EVENT_DB", ""), "SQLite file written by chat --event-db")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit one JSON object per line")
	cmd.Flags().BoolVar(&withBody, "payload", false, "include event payloads")
	return cmd
}

func writeRecords(w io.Writer, records []eventlog.Record, withBody bool) error {
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%5d %s %-8s %s\n", r.Seq, r.Timestamp.Format(time.RFC3339Nano), r.Direction, r.Type); err != nil {
			return err
		}
		if !withBody || len(r.Payload) == 0 {
			continue
		}
		b, err := json.Marshal(r.Payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "      %s\n", b); err != nil {
			return err
		}
	}
	return nil
}

type recordJSON struct {
	Seq       int64          `json:"seq"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Direction string         `json:"direction"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func writeRecordsJSON(w io.Writer, records []eventlog.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(recordJSON{
			Seq:       r.Seq,
			SessionID: r.SessionID,
			Timestamp: r.Timestamp,
			Type:      r.Type,
			Direction: string(r.Direction),
			Payload:   r.Payload,
		}); err != nil {
			return err
		}
	}
	return nil
}
