package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/sequinstream/sequin-go/pkg/sequin"
	"github.com/spf13/cobra"
)

func (a *App) newStreamCommand() *cobra.Command {
	stream := &cobra.Command{
		Use:   "stream",
		Short: "Create and delete streams",
	}

	stream.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.createOptions()
			if err != nil {
				return err
			}
			res, err := a.client().CreateStream(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return a.emit(res)
		},
	})

	stream.AddCommand(&cobra.Command{
		Use:   "delete <stream>",
		Short: "Delete a stream by id or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().DeleteStream(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(res)
		},
	})

	return stream
}

func (a *App) newConsumerCommand() *cobra.Command {
	consumer := &cobra.Command{
		Use:   "consumer",
		Short: "Create and delete pull consumers",
	}

	var filter string
	create := &cobra.Command{
		Use:   "create <stream> <name>",
		Short: "Create a pull consumer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.createOptions()
			if err != nil {
				return err
			}
			res, err := a.client().CreateConsumer(cmd.Context(), args[0], args[1], filter, opts)
			if err != nil {
				return err
			}
			return a.emit(res)
		},
	}
	create.Flags().StringVar(&filter, "filter", ">", "filter key pattern")
	consumer.AddCommand(create)

	consumer.AddCommand(&cobra.Command{
		Use:   "delete <stream> <consumer>",
		Short: "Delete a consumer by id or name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client().DeleteConsumer(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.emit(res)
		},
	})

	return consumer
}

func (a *App) newSendCommand() *cobra.Command {
	var batch bool
	cmd := &cobra.Command{
		Use:   "send <stream> [key data]",
		Short: "Send one message, or a JSON batch from stdin with --batch",
		Long: `Send one message with "send <stream> <key> <data>". Data that is valid
JSON is sent as-is, anything else as a string.

With --batch, stdin must hold a JSON array of {"key": ..., "data": ...}.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if batch {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !batch {
				res, err := a.client().SendMessage(cmd.Context(), args[0], args[1], parseValue(args[2]))
				if err != nil {
					return err
				}
				return a.emit(res)
			}

			msgs, err := readBatch(a.stdin)
			if err != nil {
				return err
			}
			res, err := a.client().SendMessages(cmd.Context(), args[0], msgs)
			if err != nil {
				return err
			}
			return a.emit(res)
		},
	}
	cmd.Flags().BoolVar(&batch, "batch", false, "read a JSON array of messages from stdin")
	return cmd
}

func readBatch(r io.Reader) ([]sequin.Message, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, usageError(fmt.Sprintf("read stdin: %v", err))
	}
	var msgs []sequin.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, usageError(fmt.Sprintf("decode batch: %v", err))
	}
	return msgs, nil
}

func (a *App) newReceiveCommand() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "receive <stream> <consumer>",
		Short: "Receive pending deliveries",
		Long: `Without --batch-size, receive at most one delivery and print null when
nothing is pending. With --batch-size, print an array of up to that many.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("batch-size") {
				d, err := a.client().ReceiveMessage(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return a.emit(d)
			}
			ds, err := a.client().ReceiveMessages(cmd.Context(), args[0], args[1], &sequin.ReceiveOptions{BatchSize: batchSize})
			if err != nil {
				return err
			}
			return a.emit(ds)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", sequin.DefaultBatchSize, "maximum deliveries to receive")
	return cmd
}

type settleFunc func(c *sequin.Client, ctx context.Context, stream, consumer string, ackIDs []string) (*sequin.AckResult, error)

func (a *App) newSettleCommand(use, short string, settle settleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <stream> <consumer> <ack-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := settle(a.client(), cmd.Context(), args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			return a.emit(res)
		},
	}
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.emit(map[string]string{
				"version":   Version,
				"commit":    Commit,
				"goVersion": runtime.Version(),
				"platform":  runtime.GOOS + "/" + runtime.GOARCH,
			})
		},
	}
}
