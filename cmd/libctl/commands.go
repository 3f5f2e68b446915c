package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/library-management/internal/config"
	"github.com/iliyamo/library-management/internal/database"
	"github.com/iliyamo/library-management/internal/model"
	"github.com/iliyamo/library-management/internal/queue"
	"github.com/iliyamo/library-management/internal/repository"
	"github.com/iliyamo/library-management/internal/service"
)

const commandTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Operate the library management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newOverdueCmd(), newConsumeCmd(), newPromoteCmd())
	return root
}

// withDB opens the configured database for the duration of fn.
func withDB(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	db, err := database.Open(config.LoadDB())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return fn(ctx, db)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				if err := database.Migrate(ctx, db); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(database.Statements()))
				return nil
			})
		},
	}
}

func newOverdueCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List borrows past their return date, earliest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				borrows := repository.NewBorrowRepo(db)
				res, err := service.NewBorrowService(borrows, borrows).OverdueBorrows(ctx, page, limit)
				if err != nil {
					return err
				}
				return printBorrows(cmd.OutOrStdout(), res, time.Now())
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", model.MaxLimit, "rows per page")
	return cmd
}

func newConsumeCmd() *cobra.Command {
	var logPath string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Append borrow lifecycle events to the borrow log until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, defPath := config.LoadEvents()
			if logPath == "" {
				logPath = defPath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
			err := queue.NewConsumer(url, logPath, logger).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "borrow log file (default $BORROW_LOG_PATH)")
	return cmd
}

func newPromoteCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant a role to an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToUpper(strings.TrimSpace(role))
			if role != model.RoleAdmin && role != model.RoleMember {
				return fmt.Errorf("unknown role %q", role)
			}
			return withDB(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				if err := repository.NewUserRepo(db).SetRole(ctx, args[0], role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", model.RoleAdmin, "role to grant (ADMIN or MEMBER)")
	return cmd
}

// printBorrows renders one page of borrows as an aligned table.
func printBorrows(w io.Writer, p model.BorrowPage, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSACTION\tBOOK\tBORROWER\tDUE\tDAYS LATE")
	for _, b := range p.Items {
		due, late := "-", "-"
		if b.ReturnDate != nil {
			due = b.ReturnDate.UTC().Format("2006-01-02")
			late = fmt.Sprintf("%d", int(now.Sub(*b.ReturnDate).Hours()/24))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s <%s>\t%s\t%s\n",
			b.TransactionID, b.Book.Title, b.Borrower.Name, b.Borrower.Email, due, late)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d, %d of %d overdue\n", p.Page, len(p.Items), p.Total)
	return err
}
