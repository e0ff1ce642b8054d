package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"clslens/internal/config"
	"clslens/internal/connections"
	"clslens/internal/metastore"
	"clslens/internal/paths"
	"clslens/internal/slogutil"
	"clslens/internal/testutil"
)

const cliFixture = `
namespace: USER
classes:
  - name: "%Library.Persistent"
    members:
      - {name: "%Save", type: method}
  - name: Demo.Base
    super: ["%Library.Persistent"]
    members:
      - {name: Run, type: method, line: 5}
  - name: Demo.Child
    super: [Demo.Base]
    members:
      - {name: "%Save", line: 5}
      - {name: Run, line: 9}
      - {name: Name, type: property, line: 13}
xrefs:
  - {class: Demo.Base, member: Run, callingClass: Demo.Caller, callingMember: Go, line: 3}
  - {class: Demo.Base, member: Run, callingClass: Demo.Caller, callingMember: Stop, line: 9}
`

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "-q"))
	err := rootCmd.Execute()
	return out.String(), err
}

// cliWorkspace creates a workspace whose only server is a metadata store
// loaded with cliFixture.
func cliWorkspace(t *testing.T) *testutil.Workspace {
	t.Helper()
	ws := testutil.NewWorkspace(t, map[string]string{
		"Demo.Child": testutil.ChildClass,
		"Demo.Base":  testutil.BaseClass,
	})

	fixturePath := filepath.Join(ws.Root, "fixture.yaml")
	if err := os.WriteFile(fixturePath, []byte(cliFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "fixture", "import", fixturePath, "-w", ws.Root, "--db", "")
	if err != nil {
		t.Fatalf("fixture import error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported 3 classes") {
		t.Errorf("fixture import output = %q", out)
	}

	store, err := metastore.Open(paths.FixtureDBPath(ws.Root), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	srv := httptest.NewServer(metastore.NewHandler(store, metastore.HandlerOptions{}, slogutil.NewDiscardLogger()))
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	cfg := config.DefaultConfig()
	cfg.Query.Dialect = "sqlite"
	cfg.Connections.Interactive = false
	if err := cfg.Save(ws.Root); err != nil {
		t.Fatal(err)
	}
	servers := &connections.File{
		Default: "fixture",
		Servers: []connections.Descriptor{{Name: "fixture", Host: u.Hostname(), Port: port, Namespace: "USER"}},
	}
	if err := servers.Save(filepath.Join(ws.Root, cfg.Connections.File)); err != nil {
		t.Fatal(err)
	}
	return ws
}

type annotateOutput struct {
	Class   string `json:"class"`
	Members []struct {
		Member        string `json:"member"`
		AnchorLine    int    `json:"anchorLine"`
		OriginClass   string `json:"originClass"`
		OverrideCount int    `json:"overrideCount"`
		XrefCount     int    `json:"xrefCount"`
	} `json:"members"`
	Markers []struct {
		Kind     string `json:"kind"`
		Member   string `json:"member"`
		Count    int    `json:"count"`
		Override *struct {
			ClassName string `json:"className"`
		} `json:"override"`
	} `json:"markers"`
}

func annotateJSON(t *testing.T, ws *testutil.Workspace, className string) annotateOutput {
	t.Helper()
	out, err := execute(t, "annotate", ws.ClassPath(className), "--format", "json", "-w", ws.Root)
	if err != nil {
		t.Fatalf("annotate error = %v\n%s", err, out)
	}
	var got annotateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("annotate output is not JSON: %v\n%s", err, out)
	}
	return got
}

func TestCLI_AnnotateChild(t *testing.T) {
	ws := cliWorkspace(t)
	got := annotateJSON(t, ws, "Demo.Child")

	if got.Class != "Demo.Child" {
		t.Errorf("class = %q, want Demo.Child", got.Class)
	}
	overrides := map[string]string{}
	for _, m := range got.Markers {
		if m.Kind == "override" && m.Override != nil {
			overrides[m.Member] = m.Override.ClassName
		}
	}
	if overrides["Run"] != "Demo.Base" {
		t.Errorf("Run override origin = %q, want Demo.Base (markers %+v)", overrides["Run"], got.Markers)
	}
	if overrides["%Save"] != "%Library.Persistent" {
		t.Errorf("%%Save override origin = %q, want %%Library.Persistent", overrides["%Save"])
	}
	if _, ok := overrides["Name"]; ok {
		t.Error("Name is declared by Demo.Child and must not get an override marker")
	}
}

func TestCLI_AnnotateBaseAndRefs(t *testing.T) {
	ws := cliWorkspace(t)
	got := annotateJSON(t, ws, "Demo.Base")

	runLine := -1
	for _, m := range got.Members {
		if m.Member == "Run" {
			runLine = m.AnchorLine
			if m.OverrideCount != 1 || m.XrefCount != 2 {
				t.Errorf("Run counts = %d/%d, want 1/2", m.OverrideCount, m.XrefCount)
			}
		}
	}
	if runLine < 0 {
		t.Fatalf("Run not reported: %+v", got.Members)
	}

	out, err := execute(t, "refs", ws.ClassPath("Demo.Base"), "--line", strconv.Itoa(runLine+1), "--format", "json", "-w", ws.Root)
	if err != nil {
		t.Fatalf("refs error = %v\n%s", err, out)
	}
	var refs RefsResponse
	if err := json.Unmarshal([]byte(out), &refs); err != nil {
		t.Fatalf("refs output is not JSON: %v\n%s", err, out)
	}
	// two call-sites plus the overriding declaration in Demo.Child
	if len(refs.References) != 3 {
		t.Fatalf("got %d references, want 3: %s", len(refs.References), out)
	}
	first := refs.References[0]
	if first.Class != "Demo.Caller" || first.Line != 3 {
		t.Errorf("first reference = %+v, want Demo.Caller line 3", first)
	}
	if last := refs.References[2]; last.Class != "Demo.Child" || last.Line != 9 {
		t.Errorf("override reference = %+v, want Demo.Child line 9", last)
	}

	out, err = execute(t, "refs", ws.ClassPath("Demo.Base"), "--line", "1", "--format", "human", "-w", ws.Root)
	if err != nil {
		t.Fatalf("refs error = %v", err)
	}
	if !strings.Contains(out, "No references found.") {
		t.Errorf("refs off an anchor line = %q", out)
	}
}

func TestCLI_ServersList(t *testing.T) {
	ws := cliWorkspace(t)
	out, err := execute(t, "servers", "list", "--format", "human", "-w", ws.Root)
	if err != nil {
		t.Fatalf("servers list error = %v", err)
	}
	if !strings.Contains(out, "fixture") || !strings.Contains(out, "[default]") {
		t.Errorf("servers list = %q", out)
	}

	out, err = execute(t, "servers", "check", "-w", ws.Root)
	if err != nil {
		t.Fatalf("servers check error = %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "OK") {
		t.Errorf("servers check = %q", out)
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, "config", "init", "-w", root)
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, "config.json") || !strings.Contains(out, "servers.toml") {
		t.Errorf("config init output = %q", out)
	}
	file, err := connections.LoadFile(filepath.Join(root, config.DirName, "servers.toml"))
	if err != nil || len(file.Servers) != 1 {
		t.Errorf("sample servers = %+v, %v", file, err)
	}

	if _, err := execute(t, "config", "init", "-w", root); err == nil {
		t.Error("second config init without --force should fail")
	}

	out, err = execute(t, "config", "show", "--format", "yaml", "-w", root)
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out, "dialect: iris") {
		t.Errorf("config show = %q", out)
	}
}

func TestCLI_Version(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "clslens") {
		t.Errorf("version = %q", out)
	}
}
