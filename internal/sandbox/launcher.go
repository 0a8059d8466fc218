package sandbox

import (
	"fmt"
	"strings"

	"github.com/forgeworks/appforge/internal/domain"
)

// Workspace file names the launcher and executor agree on
const (
	LauncherFile = "run.sh"
	ResultLog    = "result.log"
	OutputLog    = "output.log"
	ManifestFile = "requirements.txt"
)

const defaultManifest = `fastapi
uvicorn
sqlalchemy
pydantic
pytest
httpx
ruff
`

// launcherScript is the small script responsible for everything that must
// happen inside the sandbox: install dependencies, auto-fix trivial style
// issues, start the service, poll its docs surface, run the tests, and
// write the result log before touching the completion marker.
const launcherTemplate = `#!/bin/sh
set -u
cd "$(dirname "$0")"
: > %[4]s
: > %[5]s
log() { echo "$1" >> %[4]s; }

if pip install -r %[6]s >> %[5]s 2>&1; then
    log "INSTALL=ok"
else
    log "INSTALL=fail"
fi

ruff check --fix . >> %[5]s 2>&1 || true

uvicorn %[1]s --host 127.0.0.1 --port %[2]d >> %[5]s 2>&1 &
SERVICE_PID=$!

HEALTH=fail
i=0
while [ $i -lt %[3]d ]; do
    if curl -sf http://127.0.0.1:%[2]d/docs > /dev/null 2>&1; then
        HEALTH=ok
        break
    fi
    sleep 2
    i=$((i + 1))
done
log "HEALTH=$HEALTH"

if [ "$HEALTH" = "ok" ] && [ -d tests ]; then
    python -m pytest tests/ -v >> %[5]s 2>&1
    log "PYTEST_EXIT=$?"
else
    log "PYTEST_EXIT=skipped"
fi

kill "$SERVICE_PID" 2>/dev/null || true
log "DONE=1"
touch %[7]s
`

// renderLauncher produces run.sh for one attempt
func renderLauncher(entrypoint string, port int, healthPolls int) []byte {
	app := entrypointApp(entrypoint)
	script := fmt.Sprintf(launcherTemplate,
		app, port, healthPolls, ResultLog, OutputLog, ManifestFile, MarkerFile)
	return []byte(script)
}

// entrypointApp converts "app/main.py" to the uvicorn target "app.main:app"
func entrypointApp(entrypoint string) string {
	module := strings.TrimSuffix(entrypoint, ".py")
	return strings.ReplaceAll(module, "/", ".") + ":app"
}

// renderWorkspace lays out one attempt: application tree, test tree,
// dependency manifest and launcher.
func renderWorkspace(app, tests domain.CodeBundle, entrypoint string, port, healthPolls int) map[string][]byte {
	files := make(map[string][]byte, len(app)+len(tests)+2)
	for path, content := range app {
		files[path] = []byte(content)
	}
	for path, content := range tests {
		files[path] = []byte(content)
	}
	if _, ok := files[ManifestFile]; !ok {
		files[ManifestFile] = []byte(defaultManifest)
	}
	files[LauncherFile] = renderLauncher(entrypoint, port, healthPolls)
	return files
}
