// cmd/gitlet/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"gitlet/internal/commit"
	"gitlet/internal/config"
	gerrors "gitlet/internal/errors"
	"gitlet/internal/logging"
	"gitlet/internal/repository"
	"gitlet/internal/validation"
	"gitlet/internal/watch"
	"gitlet/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const dateFormat = "Mon Jan 2 15:04:05 2006 -0700"

var rootCmd = &cobra.Command{
	Use:   "gitlet",
	Short: "Gitlet is a small version control system",
	Long: `Gitlet saves snapshots of a directory tree as commits, keeps several
lines of work on branches and merges them back together.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return gerrors.InvalidArgument("No command with that name exists.", args)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return gerrors.InvalidArgument("Please enter a command.", nil)
	},
}

// operands rejects a command line with the wrong number of arguments the way
// every other user error is reported.
func operands(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min || (max >= 0 && len(args) > max) {
			return gerrors.InvalidArgument("Incorrect operands.", args)
		}
		return nil
	}
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create a new Gitlet repository in the current directory",
		Args:  operands(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			r, err := repository.Init(dir)
			if err != nil {
				return err
			}
			return r.Close()
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add <file>...",
		Short: "Stage files for the next commit",
		Args:  operands(1, -1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, cwd string) error {
				paths, err := repoPaths(r, cwd, args)
				if err != nil {
					return err
				}
				return r.Add(paths...)
			})
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit <message>",
		Short: "Record the staged snapshot",
		Args:  operands(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				_, err := r.Commit(args[0])
				return err
			})
		},
	}

	var rmCmd = &cobra.Command{
		Use:   "rm <file>...",
		Short: "Unstage files and stage tracked files for removal",
		Args:  operands(1, -1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, cwd string) error {
				paths, err := repoPaths(r, cwd, args)
				if err != nil {
					return err
				}
				return r.Remove(paths...)
			})
		},
	}

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show the history of the current branch",
		Args:  operands(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				history, err := r.Log()
				if err != nil {
					return err
				}
				for _, c := range history {
					printCommit(c)
				}
				return nil
			})
		},
	}

	var globalLogCmd = &cobra.Command{
		Use:   "global-log",
		Short: "Show every commit ever made",
		Args:  operands(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				all, err := r.GlobalLog()
				if err != nil {
					return err
				}
				for _, c := range all {
					printCommit(c)
				}
				return nil
			})
		},
	}

	var findCmd = &cobra.Command{
		Use:   "find <message>",
		Short: "Print the ids of commits with the given message",
		Args:  operands(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				ids, err := r.Find(args[0])
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show branches, staged files and working tree changes",
		Args:  operands(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			watching, _ := cmd.Flags().GetBool("watch")
			if !watching {
				return withRepo(func(r *repository.Repository, _ string) error {
					return printStatus(r)
				})
			}
			return watchStatus()
		},
	}

	var checkoutCmd = &cobra.Command{
		Use:   "checkout [<commit>] -- <file> | checkout <branch>",
		Short: "Restore a file or switch branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			return withRepo(func(r *repository.Repository, cwd string) error {
				switch {
				case dash == 0 && len(args) == 1:
					path, err := r.Path(cwd, args[0])
					if err != nil {
						return err
					}
					return r.CheckoutFile(path)
				case dash == 1 && len(args) == 2:
					path, err := r.Path(cwd, args[1])
					if err != nil {
						return err
					}
					return r.CheckoutFileAt(args[0], path)
				case dash == -1 && len(args) == 1:
					return r.SwitchBranch(args[0])
				default:
					return gerrors.InvalidArgument("Incorrect operands.", args)
				}
			})
		},
	}

	var branchCmd = &cobra.Command{
		Use:   "branch <name>",
		Short: "Create a branch at the current commit",
		Args:  operands(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				return r.Branch(args[0])
			})
		},
	}

	var rmBranchCmd = &cobra.Command{
		Use:   "rm-branch <name>",
		Short: "Delete a branch pointer",
		Args:  operands(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				return r.RemoveBranch(args[0])
			})
		},
	}

	var resetCmd = &cobra.Command{
		Use:   "reset <commit>",
		Short: "Check out a commit and move the current branch to it",
		Args:  operands(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				_, err := r.Reset(args[0])
				return err
			})
		},
	}

	var mergeCmd = &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge a branch into the current branch",
		Args:  operands(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, _ string) error {
				res, err := r.Merge(args[0])
				if err != nil {
					return err
				}
				if msg := res.Message(); msg != "" {
					fmt.Println(msg)
				}
				return nil
			})
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [file...]",
		Short: "Show unstaged changes to tracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *repository.Repository, cwd string) error {
				paths, err := repoPaths(r, cwd, args)
				if err != nil {
					return err
				}
				diffs, err := r.Diff(paths...)
				if err != nil {
					return err
				}
				for _, d := range diffs {
					b := "b/" + d.Path
					if d.Deleted {
						b = "/dev/null"
					}
					fmt.Printf("diff --gitlet a/%s %s\n", d.Path, b)
					printColoredDiff(d.Result.Format())
				}
				return nil
			})
		},
	}

	statusCmd.Flags().BoolP("watch", "w", false, "Reprint status whenever the working tree changes")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(globalLogCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(rmBranchCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(diffCmd)
}

// withRepo opens the repository containing the working directory, runs fn
// and closes it again.
func withRepo(fn func(r *repository.Repository, cwd string) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	root, err := workspace.FindRoot(cwd)
	if err != nil {
		return err
	}

	r, err := repository.Open(root)
	if err != nil {
		return err
	}

	runErr := fn(r, cwd)
	if runErr != nil {
		if gerr, ok := gerrors.As(runErr); !ok || !gerr.User() {
			r.Logger.Error("operation failed", zap.Error(runErr))
		}
	}
	if err := r.Close(); err != nil && runErr == nil {
		return fmt.Errorf("closing repository: %w", err)
	}
	return runErr
}

func repoPaths(r *repository.Repository, cwd string, args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, a := range args {
		p, err := r.Path(cwd, a)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func printCommit(c *commit.Commit) {
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Println("===")
	fmt.Println(yellow("commit " + c.ID()))
	if line := c.MergeLine(); line != "" {
		fmt.Println(line)
	}
	fmt.Println("Date: " + c.Timestamp().Local().Format(dateFormat))
	fmt.Println(c.Message())
	fmt.Println()
}

func printStatus(r *repository.Repository) error {
	st, err := r.Status()
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	fmt.Println("=== Branches ===")
	for _, b := range st.Branches {
		if b == st.Current {
			fmt.Println(green("*" + b))
			continue
		}
		fmt.Println(b)
	}
	fmt.Println()

	fmt.Println("=== Staged Files ===")
	for _, p := range st.Staged {
		fmt.Println(green(p))
	}
	fmt.Println()

	fmt.Println("=== Removed Files ===")
	for _, p := range st.Removed {
		fmt.Println(red(p))
	}
	fmt.Println()

	modifications := make([]string, 0, len(st.Modified)+len(st.Deleted))
	for _, p := range st.Modified {
		modifications = append(modifications, p+" (modified)")
	}
	for _, p := range st.Deleted {
		modifications = append(modifications, p+" (deleted)")
	}
	sort.Strings(modifications)

	fmt.Println("=== Modifications Not Staged For Commit ===")
	for _, m := range modifications {
		fmt.Println(yellow(m))
	}
	fmt.Println()

	fmt.Println("=== Untracked Files ===")
	for _, p := range st.Untracked {
		fmt.Println(blue(p))
	}
	fmt.Println()
	return nil
}

// watchStatus prints status, then prints it again after every change to the
// working tree until interrupted. The repository is only held open while
// printing so other gitlet commands can run alongside.
func watchStatus() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	root, err := workspace.FindRoot(cwd)
	if err != nil {
		return err
	}

	logger, err := repoLogger(root)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ws, err := workspace.New(root, logger.Logger)
	if err != nil {
		return err
	}

	refresh := func() error {
		return withRepo(func(r *repository.Repository, _ string) error {
			return printStatus(r)
		})
	}
	if err := refresh(); err != nil {
		return err
	}

	w, err := watch.New(ws.Root(), ws.Ignored, watch.DefaultDebounce, logger.Logger)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return w.Run(ctx, func() {
		fmt.Println(strings.Repeat("-", 40))
		if err := refresh(); err != nil {
			logger.Warn("refreshing status", zap.Error(err))
		}
	})
}

// repoLogger builds the logger configured for the repository at root.
func repoLogger(root string) (*logging.Logger, error) {
	cfg, err := config.Load(filepath.Join(root, validation.RepoDirName, config.FileName))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	lines := strings.Split(strings.TrimSuffix(diff, "\n"), "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if gerr, ok := gerrors.As(err); ok && gerr.User() {
			fmt.Println(gerr.Message)
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
