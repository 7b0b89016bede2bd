package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gwi.com/polyglot-chat/internal/logger"
)

// ImportUsersFromFile reads a Markdown table of "| username | language |" rows
// and upserts every row into dir. The username cell becomes the display name;
// the id is its lowercase form. It returns the number of users written.
func ImportUsersFromFile(ctx context.Context, dir UserDirectory, filePath string) (int, error) {
	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read users file %s: %w", filePath, err)
	}
	lines := strings.Split(string(contentBytes), "\n")

	count := 0
	for i, line := range lines {
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine == "" {
			continue
		}
		if !strings.HasPrefix(trimmedLine, "|") || !strings.HasSuffix(trimmedLine, "|") {
			logger.Warnf("Skipping line %d not matching table row format: %s", i+1, trimmedLine)
			continue
		}

		// "| alice | English |" splits into ["", " alice ", " English ", ""].
		parts := strings.Split(trimmedLine, "|")
		if len(parts) < 4 {
			logger.Warnf("Skipping malformed table row %d (expected 2 cells): %s", i+1, trimmedLine)
			continue
		}
		username := strings.TrimSpace(parts[1])
		language := strings.TrimSpace(parts[2])

		if isHeaderRow(username, language) || strings.HasPrefix(username, "---") {
			continue
		}
		if username == "" || language == "" {
			logger.Warnf("Skipping row %d with an empty cell: %s", i+1, trimmedLine)
			continue
		}

		if _, err := dir.UpsertUser(ctx, strings.ToLower(username), username, language); err != nil {
			return count, fmt.Errorf("failed to import user %q: %w", username, err)
		}
		count++
	}

	logger.Infof("Imported %d users from %s", count, filePath)
	return count, nil
}

func isHeaderRow(first, second string) bool {
	return strings.EqualFold(first, "username") && strings.EqualFold(second, "language")
}
