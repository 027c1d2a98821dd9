// cmd/doccli is the CLI entry-point built with Cobra.
//
// Usage:
//
//	doccli create '{"title":"hi"}'             --server http://localhost:8080 --token secret1
//	doccli get mydoc                            --server http://localhost:8080 --token secret1
//	doccli update mydoc '{"_rev":"1-abcd1234"}'  --server http://localhost:8080 --token secret1
//	doccli delete mydoc                          --server http://localhost:8080 --token secret1
//	doccli ids                                   --server http://localhost:8080 --token secret1
//	doccli health                                --server http://localhost:8080 --token secret1
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/distributed-docstore/docstore/internal/client"
	"github.com/distributed-docstore/docstore/internal/model"
)

var (
	serverAddr string
	authToken  string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "doccli",
		Short: "CLI client for the replicated document store",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "Document store node address")
	root.PersistentFlags().StringVarP(&authToken, "token", "t",
		"", "Bearer token for the target node")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(createCmd(), updateCmd(), getCmd(), deleteCmd(), idsCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(serverAddr, authToken, timeout)
}

// ─── create ───────────────────────────────────────────────────────────────

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <json-doc>",
		Short: "Create a document (omit _id to have one generated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDoc(args[0])
			if err != nil {
				return err
			}
			saved, err := newClient().Create(context.Background(), doc)
			if err != nil {
				return err
			}
			prettyPrint(saved)
			return nil
		},
	}
}

// ─── update ───────────────────────────────────────────────────────────────

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <json-doc-with-_rev>",
		Short: "CAS-update a document; json-doc must carry its current _rev",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDoc(args[1])
			if err != nil {
				return err
			}
			doc = doc.WithID(args[0])
			saved, err := newClient().Update(context.Background(), doc)
			if err != nil {
				return err
			}
			prettyPrint(saved)
			return nil
		},
	}
}

// ─── get ──────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := newClient().Get(context.Background(), args[0])
			if err == client.ErrNotFound {
				fmt.Printf("document %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(doc)
			return nil
		},
	}
}

// ─── delete ───────────────────────────────────────────────────────────────

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}

// ─── ids ──────────────────────────────────────────────────────────────────

func idsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "List known document ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := newClient().ListIDs(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(ids)
			return nil
		},
	}
}

// ─── health ───────────────────────────────────────────────────────────────

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check node health",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newClient().Health(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(status)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────

func parseDoc(raw string) (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse json document: %w", err)
	}
	return doc, nil
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
