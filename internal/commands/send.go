package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"talkie/internal/chat"

	"github.com/spf13/cobra"
)

var sendFiles []string

func init() {
	sendCmd.Flags().StringArrayVarP(&sendFiles, "file", "f", nil, "attach a file (repeatable)")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <room-id> <message>",
	Short: "Send a message, optionally with file attachments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer a.close()

		roomID, content := args[0], args[1]

		var refs []string
		if len(sendFiles) > 0 {
			uploads := make([]chat.Upload, 0, len(sendFiles))
			for _, path := range sendFiles {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				uploads = append(uploads, chat.Upload{
					Name:    filepath.Base(path),
					Content: data,
				})
			}
			refs, err = a.service.UploadAttachments(ctx, roomID, uploads)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
		}

		msg, err := a.service.SendViaAPI(ctx, roomID, content, refs)
		if err != nil {
			return err
		}

		fmt.Printf("sent %s\n", msg.ChatID)
		return nil
	},
}
