package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/balkashynov/wotrack/internal/mirror"
)

var errMirrorDisabled = errors.New("remote mirror is not enabled (needs the csv or json backend and remote.repo)")

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push or pull the data files to the GitHub mirror",
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the local data files",
	Run: func(cmd *cobra.Command, args []string) {
		m, err := mirrorStore()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		pushed, err := m.Push(cmd.Context(), "manual push")
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if len(pushed) == 0 {
			fmt.Println("Remote is already up to date")
			return
		}
		for _, name := range pushed {
			fmt.Printf("⬆️  %s\n", name)
		}
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local data files with the remote copies",
	Run: func(cmd *cobra.Command, args []string) {
		m, err := mirrorStore()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		pulled, err := m.Pull(cmd.Context())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if len(pulled) == 0 {
			fmt.Println("Nothing on the remote yet")
			return
		}
		for _, name := range pulled {
			fmt.Printf("⬇️  %s\n", name)
		}
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare the local data files with the remote",
	Run: func(cmd *cobra.Command, args []string) {
		m, err := mirrorStore()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		statuses, err := m.Status(cmd.Context())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		fmt.Printf("Remote: %s\n\n", cfg.Remote.Repo)
		for _, s := range statuses {
			state := "in sync"
			switch {
			case s.RemoteSHA == "":
				state = "not on remote"
			case s.LocalSHA == "":
				state = "only on remote"
			case !s.InSync():
				state = "differs"
			}
			fmt.Printf("%-24s %s\n", s.Name, state)
		}
	},
}

func mirrorStore() (*mirror.Store, error) {
	m, ok := store.(*mirror.Store)
	if !ok {
		return nil, errMirrorDisabled
	}
	return m, nil
}

func init() {
	syncCmd.AddCommand(syncPushCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncStatusCmd)
}
