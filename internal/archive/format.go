package archive

import (
	"sort"
	"strings"
	"time"

	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/parser"
)

// FileName returns the archive file name for a date key.
func FileName(dateKey string) string {
	return dateKey + ".md"
}

// IsRecordName reports whether name is a YYYY-MM-DD.md archive file name.
func IsRecordName(name string) bool {
	key, ok := strings.CutSuffix(name, ".md")
	if !ok {
		return false
	}
	_, err := time.Parse(models.DateLayout, key)
	return err == nil
}

// Encode renders e in the legacy archive layout used for every archive file.
func Encode(e *models.Entry) []byte {
	var b strings.Builder
	header := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	header(parser.HeaderNotionID, e.RemoteID(models.TargetNotion))
	if !e.LastModified.IsZero() {
		header(parser.HeaderLastModified, e.LastModified.UTC().Format(time.RFC3339Nano))
	}
	header(parser.HeaderSubject, e.Subject())
	header(parser.HeaderButtondownID, e.RemoteID(models.TargetButtondown))
	header(parser.HeaderSlackID, e.RemoteID(models.TargetSlack))

	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		header(k, e.Extra[k])
	}

	b.WriteByte('\n')
	if body := strings.TrimRight(e.Body, "\n"); body != "" {
		b.WriteString(body)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
