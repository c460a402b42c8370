package editor

import (
	"os"
	"regexp"
	"strings"

	"github.com/standardbeagle/codeindexd/internal/errtax"
)

var (
	goImportLineRe     = regexp.MustCompile(`^\s*"[^"]+"\s*$`)
	pyImportLineRe     = regexp.MustCompile(`^\s*(import|from)\s+\S+`)
	jsImportLineRe     = regexp.MustCompile(`^\s*import\s+.+from\s+['"].+['"]\s*;?\s*$`)
)

// AddImport implements the add_import operation (SPEC_FULL.md §3):
// insert importStatement after the last existing import-shaped line, or
// at the top of the file if none is found, then run the result as a
// single-file transaction whose old_content is the file's full current
// content. If the statement already appears in the file, nothing is
// written.
func (e *Engine) AddImport(owner, path, importStatement string) Result {
	disk := e.diskPath(path)
	content, err := os.ReadFile(disk)
	if err != nil {
		return Result{Error: errtax.Wrap(errtax.FileNotFound, "editor.add_import", err, "cannot read %s", path).WithPath(path)}
	}

	newContent := insertImport(string(content), importStatement)
	if newContent == string(content) {
		return Result{OK: true, FilesChanged: nil}
	}

	return e.EditFilesTransaction(owner, []AtomicEdit{{
		Path:       path,
		OldContent: string(content),
		NewContent: newContent,
	}})
}

func insertImport(content, statement string) string {
	statement = strings.TrimRight(statement, "\n")
	if strings.Contains(content, statement) {
		return content
	}

	lines := strings.Split(content, "\n")
	lastImportIdx := -1
	for i, line := range lines {
		if isImportLine(line) {
			lastImportIdx = i
		}
	}

	if lastImportIdx == -1 {
		return statement + "\n" + content
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:lastImportIdx+1]...)
	out = append(out, statement)
	out = append(out, lines[lastImportIdx+1:]...)
	return strings.Join(out, "\n")
}

func isImportLine(line string) bool {
	return pyImportLineRe.MatchString(line) || jsImportLineRe.MatchString(line) || goImportLineRe.MatchString(line)
}
