package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAllowed = []string{"encoding/json", "fmt", "sort", "strings", "strconv", "time"}

func newTestRunner() *Runner {
	return NewRunner(Config{
		Timeout:         2 * time.Second,
		AllowedPackages: testAllowed,
		MaxSourceBytes:  4096,
		MaxOutputBytes:  64,
	})
}

const greetSource = `import "strings"

func greet_soul(params map[string]interface{}) string {
	name, _ := params["name"].(string)
	return "hello " + strings.ToUpper(name)
}`

func TestRunner_Run(t *testing.T) {
	r := newTestRunner()

	res, err := r.Run(context.Background(), "greet_soul", greetSource, map[string]interface{}{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ADA", res.Output)
	assert.Empty(t, res.Console)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRunner_RunNilParams(t *testing.T) {
	r := newTestRunner()

	res, err := r.Run(context.Background(), "greet_soul", greetSource, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello ", res.Output)
}

func TestRunner_NonStringResults(t *testing.T) {
	r := newTestRunner()

	count := `func count_keys(p map[string]interface{}) interface{} {
	return len(p)
}`
	res, err := r.Run(context.Background(), "count_keys", count, map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "2", res.Output)

	none := `func nothing(p map[string]interface{}) interface{} {
	return nil
}`
	res, err = r.Run(context.Background(), "nothing", none, nil)
	require.NoError(t, err)
	assert.Equal(t, "null", res.Output)
}

func TestRunner_JSONTool(t *testing.T) {
	r := newTestRunner()

	src := `import "encoding/json"

func echo_json(p map[string]interface{}) string {
	b, err := json.Marshal(p)
	if err != nil {
		return "marshal failed"
	}
	return string(b)
}`
	res, err := r.Run(context.Background(), "echo_json", src, map[string]interface{}{"x": "y"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":"y"}`, res.Output)
}

func TestRunner_ConsoleIsCapturedNotReturned(t *testing.T) {
	r := newTestRunner()

	src := `import "fmt"

func chatty(p map[string]interface{}) string {
	for i := 0; i < 50; i++ {
		fmt.Println("line", i)
	}
	return "done"
}`
	res, err := r.Run(context.Background(), "chatty", src, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", res.Output)
	assert.Contains(t, res.Console, "line 0")
	assert.True(t, strings.HasSuffix(res.Console, "...(truncated)"))
}

func TestRunner_Errors(t *testing.T) {
	r := newTestRunner()

	tests := []struct {
		name    string
		tool    string
		source  string
		wantErr error
		wantMsg string
	}{
		{
			name:    "forbidden import",
			tool:    "read_file",
			source:  "import \"os\"\n\nfunc read_file(p map[string]interface{}) string {\n\tb, _ := os.ReadFile(\"/etc/passwd\")\n\treturn string(b)\n}",
			wantErr: ErrForbiddenImport,
			wantMsg: "os",
		},
		{
			name:    "syntax error",
			tool:    "broken",
			source:  "func broken(p map[string]interface{}) string {\n\treturn \"unterminated\n}",
			wantErr: ErrSyntax,
		},
		{
			name:    "wrong function name",
			tool:    "expected",
			source:  "func other(p map[string]interface{}) string { return \"\" }",
			wantErr: ErrSignature,
			wantMsg: "want expected",
		},
		{
			name:    "compile error",
			tool:    "typo",
			source:  "func typo(p map[string]interface{}) string { return undefinedThing }",
			wantErr: ErrCompile,
		},
		{
			name:    "panic",
			tool:    "explode",
			source:  "func explode(p map[string]interface{}) string { panic(\"boom\") }",
			wantErr: ErrPanic,
			wantMsg: "boom",
		},
		{
			name:    "goroutine panic",
			tool:    "detach",
			source:  "func detach(p map[string]interface{}) string {\n\tgo func() { panic(\"boom\") }()\n\treturn \"ok\"\n}",
			wantErr: ErrForbiddenStmt,
			wantMsg: "go statements",
		},
		{
			name:    "timer callback",
			tool:    "later",
			source:  "import \"time\"\n\nfunc later(p map[string]interface{}) string {\n\ttime.AfterFunc(time.Millisecond, func() { panic(\"boom\") })\n\treturn \"ok\"\n}",
			wantErr: ErrForbiddenStmt,
		},
		{
			name:    "source too large",
			tool:    "big",
			source:  "func big(p map[string]interface{}) string { return \"" + strings.Repeat("x", 5000) + "\" }",
			wantErr: ErrSourceTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(context.Background(), tt.tool, tt.source, nil)
			assert.Nil(t, res)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRunner_Timeout(t *testing.T) {
	r := NewRunner(Config{Timeout: 200 * time.Millisecond, AllowedPackages: testAllowed})

	src := `func spin(p map[string]interface{}) string {
	n := 0
	for {
		n++
	}
	return "unreachable"
}`
	start := time.Now()
	_, err := r.Run(context.Background(), "spin", src, nil)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunner_IsolatedBetweenRuns(t *testing.T) {
	r := newTestRunner()

	first := `func shared(p map[string]interface{}) string { return "first" }`
	second := `func shared(p map[string]interface{}) string { return "second" }`

	res, err := r.Run(context.Background(), "shared", first, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", res.Output)

	res, err = r.Run(context.Background(), "shared", second, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Output)
}

func TestRunner_Concurrent(t *testing.T) {
	r := newTestRunner()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("n%d", i)
			res, err := r.Run(context.Background(), "greet_soul", greetSource, map[string]interface{}{"name": name})
			if err != nil {
				errs <- err
				return
			}
			if res.Output != "hello "+strings.ToUpper(name) {
				errs <- fmt.Errorf("run %d got %q", i, res.Output)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestParse(t *testing.T) {
	allowed := map[string]bool{"strings": true}

	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{"string result", "func f(p map[string]interface{}) string { return \"\" }", nil},
		{"any result", "func f(p map[string]any) any { return nil }", nil},
		{"unnamed param", "func f(map[string]interface{}) string { return \"\" }", nil},
		{"allowed import block", "import (\n\t\"strings\"\n)\n\nfunc f(p map[string]interface{}) string { return strings.TrimSpace(\"\") }", nil},
		{"method", "type T struct{}\n\nfunc (T) f(p map[string]interface{}) string { return \"\" }", ErrSignature},
		{"two functions", "func f(p map[string]interface{}) string { return g() }\n\nfunc g() string { return \"\" }", ErrSignature},
		{"init function", "func init() {}\n\nfunc f(p map[string]interface{}) string { return \"\" }", ErrSignature},
		{"package var", "var x = 1\n\nfunc f(p map[string]interface{}) string { return \"\" }", ErrSignature},
		{"wrong param", "func f(s string) string { return s }", ErrSignature},
		{"two params", "func f(p map[string]interface{}, q int) string { return \"\" }", ErrSignature},
		{"two results", "func f(p map[string]interface{}) (string, error) { return \"\", nil }", ErrSignature},
		{"no result", "func f(p map[string]interface{}) {}", ErrSignature},
		{"generic", "func f[T any](p map[string]interface{}) string { return \"\" }", ErrSignature},
		{"no function", "import \"strings\"", ErrSignature},
		{"dot import", "import . \"strings\"\n\nfunc f(p map[string]interface{}) string { return \"\" }", ErrForbiddenImport},
		{"blocked import", "import \"net/http\"\n\nfunc f(p map[string]interface{}) string { return \"\" }", ErrForbiddenImport},
		{"garbage", "this is not go", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := Parse("f", tt.source, allowed)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "f", unit.Name)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParse_RejectsUnusableSource(t *testing.T) {
	allowed := map[string]bool{"fmt": true, "strings": true, "time": true}

	tests := []struct {
		name    string
		tool    string
		source  string
		wantErr error
		wantMsg string
	}{
		{"go statement", "f", "func f(p map[string]interface{}) string {\n\tgo func() {}()\n\treturn \"\"\n}", ErrForbiddenStmt, "go statements"},
		{"nested go statement", "f", "func f(p map[string]interface{}) string {\n\tfor i := 0; i < 2; i++ {\n\t\tif i > 0 {\n\t\t\tgo println(i)\n\t\t}\n\t}\n\treturn \"\"\n}", ErrForbiddenStmt, "go statements"},
		{"after func", "f", "import \"time\"\n\nfunc f(p map[string]interface{}) string {\n\ttime.AfterFunc(time.Second, func() {})\n\treturn \"\"\n}", ErrForbiddenStmt, "time.AfterFunc"},
		{"aliased after func", "f", "import clock \"time\"\n\nfunc f(p map[string]interface{}) string {\n\tstart := clock.AfterFunc\n\t_ = start\n\treturn \"\"\n}", ErrForbiddenStmt, "clock.AfterFunc"},
		{"shadows import", "fmt", "import \"fmt\"\n\nfunc fmt(p map[string]interface{}) string { return fmt.Sprint(p) }", ErrSignature, `shadows the imported package "fmt"`},
		{"shadows aliased import", "str", "import str \"strings\"\n\nfunc str(p map[string]interface{}) string { return str.ToUpper(\"\") }", ErrSignature, "shadows"},
		{"host alias import", "f", "import " + hostAlias + " \"strings\"\n\nfunc f(p map[string]interface{}) string { return \"\" }", ErrForbiddenImport, "reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := Parse(tt.tool, tt.source, allowed)
			assert.Nil(t, unit)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	t.Run("other time functions", func(t *testing.T) {
		src := "import \"time\"\n\nfunc f(p map[string]interface{}) string {\n\treturn time.Unix(0, 0).UTC().Format(time.RFC3339)\n}"
		_, err := Parse("f", src, allowed)
		assert.NoError(t, err)
	})

	t.Run("tool named like an unimported package", func(t *testing.T) {
		_, err := Parse("fmt", "func fmt(p map[string]interface{}) string { return \"\" }", allowed)
		assert.NoError(t, err)
	})
}

func TestParse_ReportsImportsAndResultKind(t *testing.T) {
	unit, err := Parse("greet_soul", greetSource, map[string]bool{"strings": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"strings"}, unit.Imports)
	assert.True(t, unit.ReturnsString)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "null", Stringify(nil))
	assert.Equal(t, "text", Stringify("text"))
	assert.Equal(t, "3.5", Stringify(3.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "1s", Stringify(time.Second))
	assert.Equal(t, "bad", Stringify(fmt.Errorf("bad")))
	assert.Equal(t, "[1 2]", Stringify([]int{1, 2}))
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde...(truncated)", b.String())
}
