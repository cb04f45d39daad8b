package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-session/session"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Send an authenticated GET to the API and print the response body",
	Long:  `Sends GET <api-url><path> with the session's bearer token. A rejected token is refreshed and the request retried once.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := appConfig.GetAPIURL() + "/" + strings.TrimLeft(args[0], "/")
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("[get] %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := session.NewHTTPClient(manager, nil).Do(req)
		if err != nil {
			return fmt.Errorf("[get] %w", err)
		}
		defer resp.Body.Close()

		if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
			return fmt.Errorf("[get] failed to read response: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%s %s: %s", req.Method, args[0], resp.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
