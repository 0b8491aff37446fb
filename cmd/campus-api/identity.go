package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/service"
	"github.com/noah-isme/campus-course-api/pkg/config"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <id>...",
	Short: "Show the campus of course ids and the role of user ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			line, err := classify(arg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func classify(raw string) (string, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%q is not a numeric id", raw)
	}
	switch {
	case campus.ValidCourseID(id):
		return fmt.Sprintf("%d\tcourse\tcampus %s", id, campus.CampusOf(id)), nil
	case campus.ValidUserID(id):
		return fmt.Sprintf("%d\tuser\t%s", id, campus.RoleOf(id)), nil
	default:
		return fmt.Sprintf("%d\tinvalid", id), nil
	}
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <uid>",
	Short: "Sign an access token with JWT_SECRET for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%q is not a numeric id", args[0])
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		auth := service.NewAuthService(nil, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})
		token, err := auth.IssueToken(uid, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
