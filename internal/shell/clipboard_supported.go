//go:build !linux

package shell

import "golang.design/x/clipboard"

// clipboardAvailable indicates if clipboard functionality is available on this platform
const clipboardAvailable = true

// writeToClipboard writes text to the system clipboard
func writeToClipboard(text string) error {
	if err := clipboard.Init(); err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
