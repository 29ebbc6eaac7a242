package gdrive

import (
	"fmt"
	"strings"

	"impractical.co/driveup"
)

const folderMimeType = "application/vnd.google-apps.folder"

// escape quotes a value for use inside a single-quoted Drive query string.
// Escaping the backslash isn't documented but is accepted.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// buildQuery returns the Drive search query for q.
//
// See https://developers.google.com/drive/api/guides/search-files
func buildQuery(q driveup.Query) string {
	clauses := []string{
		fmt.Sprintf("name='%s'", escape(q.Name)),
		fmt.Sprintf("'%s' in parents", escape(q.ParentID)),
		"trashed=false",
	}
	switch q.Kind {
	case driveup.KindFolder:
		clauses = append(clauses, fmt.Sprintf("mimeType='%s'", folderMimeType))
	case driveup.KindFile:
		clauses = append(clauses, fmt.Sprintf("mimeType!='%s'", folderMimeType))
	}
	return strings.Join(clauses, " and ")
}
