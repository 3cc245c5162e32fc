package farmbrief

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/ledongthuc/pdf"
)

// legacyCommandPrefix matches the old message-command prefix; messages
// starting with it are treated as bot commands and excluded from
// discussion extraction.
const legacyCommandPrefix = "!"

// noDiscussionNotice is returned when a channel window contains no
// human messages.
const noDiscussionNotice = "No messages found in the discussion."

// ExtractPDF pulls plain text from a PDF byte stream.
func ExtractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("error reading PDF: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page shouldn't sink the document
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no extractable text in PDF")
	}
	return sb.String(), nil
}

// ExtractDiscussion formats a window of channel messages as a single text
// block, oldest first. Bot messages and legacy command invocations are
// skipped. The input is expected newest-first, as Discord returns it.
func ExtractDiscussion(messages []*discordgo.Message) string {
	var lines []string
	for _, m := range messages {
		if m == nil || m.Author == nil || m.Author.Bot {
			continue
		}
		if m.Content == "" || strings.HasPrefix(m.Content, legacyCommandPrefix) {
			continue
		}
		lines = append(
			lines,
			fmt.Sprintf(
				"[%s] %s: %s",
				m.Timestamp.Format("2006-01-02 15:04"),
				m.Author.Username,
				m.Content,
			),
		)
	}
	if len(lines) == 0 {
		return noDiscussionNotice
	}

	// newest-first to chronological
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}

	return "Discussion History:\n\n" + strings.Join(lines, "\n")
}

// readAll is a small indirection so PDF/attachment readers share one
// error wrap.
func readAll(r io.Reader, what string) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", what, err)
	}
	return data, nil
}
