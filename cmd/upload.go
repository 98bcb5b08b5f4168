/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gallery-app/apiserver/client"
	"github.com/gallery-app/apiserver/types"
	"github.com/spf13/cobra"
)

var uploadOpts struct {
	apiURL    string
	tokenFile string
	username  string
	title     string
	caption   string
	tags      string
	maxBytes  int64
}

// uploadCmd publishes an image through the two-phase upload.
var uploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "Uploads an image and creates a post",
	Long: `Uploads an image straight to object storage through a presigned URL and
confirms it with the API. The session token is kept in --token-file; when it is
missing or expired, --username and GALLERY_PASSWORD are used to log in. Usage:

	gallery upload --username alice --title "Sunset" --tags "sea,sun" sunset.jpg
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if contentType == "" {
			return fmt.Errorf("cannot determine content type of %s", path)
		}

		tokenFile := uploadOpts.tokenFile
		if tokenFile == "" {
			if tokenFile, err = client.DefaultTokenPath(); err != nil {
				return err
			}
		}

		session, err := newUploadSession(uploadOpts.apiURL,
			client.WithTokenStore(client.NewFileTokenStore(tokenFile)),
			client.WithMaxUploadBytes(uploadOpts.maxBytes),
		)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := session.ensure(ctx, uploadOpts.username, os.Getenv("GALLERY_PASSWORD")); err != nil {
			return err
		}

		post, err := session.api.UploadImage(ctx,
			client.UploadFile{Filename: filepath.Base(path), ContentType: contentType, Data: data},
			types.PostDraft{Title: uploadOpts.title, Caption: uploadOpts.caption, Tags: uploadOpts.tags},
		)
		if err != nil {
			return session.wrap(err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(post)
	},
}

// uploadSession tracks whether the client guard ended the session, so a
// failed upload can tell the user to log in again.
type uploadSession struct {
	api     *client.Client
	expired bool
}

func newUploadSession(apiURL string, opts ...client.Option) (*uploadSession, error) {
	s := &uploadSession{}
	opts = append(opts, client.WithUnauthorizedHandler(func(string) { s.expired = true }))
	api, err := client.New(apiURL, opts...)
	if err != nil {
		return nil, err
	}
	s.api = api
	return s, nil
}

// ensure logs in when no valid session is stored. A fresh login clears any
// expiry noted by the session check.
func (s *uploadSession) ensure(ctx context.Context, username, password string) error {
	if s.api.CheckSession("upload") {
		return nil
	}
	if username == "" {
		return errors.New("not logged in: pass --username and set GALLERY_PASSWORD")
	}
	if _, err := s.api.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.expired = false
	return nil
}

func (s *uploadSession) wrap(err error) error {
	if s.expired {
		return fmt.Errorf("session expired, log in again: %w", err)
	}
	return err
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	defaultAPI := os.Getenv("GALLERY_API_URL")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8080"
	}
	uploadCmd.Flags().StringVar(&uploadOpts.apiURL, "api", defaultAPI, "API base URL")
	uploadCmd.Flags().StringVar(&uploadOpts.tokenFile, "token-file", "", "session token file (default: user config dir)")
	uploadCmd.Flags().StringVar(&uploadOpts.username, "username", "", "username to log in with when no session is stored")
	uploadCmd.Flags().StringVar(&uploadOpts.title, "title", "", "post title")
	uploadCmd.Flags().StringVar(&uploadOpts.caption, "caption", "", "post caption")
	uploadCmd.Flags().StringVar(&uploadOpts.tags, "tags", "", "comma-separated tags")
	uploadCmd.Flags().Int64Var(&uploadOpts.maxBytes, "max-bytes", client.DefaultMaxUploadBytes, "refuse files larger than this")
}
