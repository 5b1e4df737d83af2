package cmd

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"DropFM/core/auth"
	"DropFM/model"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "用户管理",
}

var (
	userAdmin   bool
	userLibrary string
)

var userAddCmd = &cobra.Command{
	Use:   "add <username> <password>",
	Short: "创建用户",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userLibrary != "" && !filepath.IsAbs(userLibrary) {
			return fmt.Errorf("曲库路径必须是绝对路径: %s", userLibrary)
		}
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		existing, err := st.users.GetUserByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("用户 %s 已存在", args[0])
		}
		hash, err := auth.HashPassword(args[1])
		if err != nil {
			return err
		}
		u := &model.User{Username: args[0], PasswordHash: hash, IsAdmin: userAdmin}
		if userLibrary != "" {
			u.LibraryPath = sql.NullString{String: filepath.Clean(userLibrary), Valid: true}
		}
		id, err := st.users.CreateUser(cmd.Context(), u)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, id)
		return nil
	},
}

var userLibraryCmd = &cobra.Command{
	Use:   "library <username> [path]",
	Short: "设置用户曲库路径，不传路径则恢复为全局曲库",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 2 {
			if !filepath.IsAbs(args[1]) {
				return fmt.Errorf("曲库路径必须是绝对路径: %s", args[1])
			}
			path = filepath.Clean(args[1])
		}
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.users.GetUserByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("用户 %s 不存在", args[0])
		}
		if err := st.users.UpdateLibraryPath(cmd.Context(), u.ID, path); err != nil {
			return err
		}
		if path == "" {
			path = cfg.MusicDir
		}
		fmt.Fprintf(cmd.OutOrStdout(), "library for %s: %s\n", u.Username, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userLibraryCmd)

	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "创建管理员")
	userAddCmd.Flags().StringVar(&userLibrary, "library", "", "用户曲库的绝对路径")
}
