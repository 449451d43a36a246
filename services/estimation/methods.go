package estimation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/dop251/goja"
	"gopkg.in/yaml.v3"

	"github.com/coach-dss/coach/internal/errors"
)

// EntryPoint is the function every method script must define.
const EntryPoint = "estimate"

var methodNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// Method is a scripted estimation method.
type Method struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Params      []string `yaml:"params" json:"params"`
	Script      string   `yaml:"script" json:"script"`

	program *goja.Program
}

// MethodInfo describes a method without its script.
type MethodInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
}

func (m *Method) Info() MethodInfo {
	params := m.Params
	if params == nil {
		params = []string{}
	}
	return MethodInfo{Name: m.Name, Description: m.Description, Params: params}
}

// Catalog is an immutable set of compiled methods.
type Catalog struct {
	methods map[string]*Method
	names   []string
}

// LoadCatalog reads a YAML list of methods.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read methods: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and compiles a YAML list of methods. Names must be
// unique and usable as case property suffixes.
func ParseCatalog(data []byte) (*Catalog, error) {
	var methods []*Method
	if err := yaml.Unmarshal(data, &methods); err != nil {
		return nil, fmt.Errorf("parse methods: %w", err)
	}

	c := &Catalog{methods: make(map[string]*Method, len(methods))}
	for _, m := range methods {
		if m == nil || !methodNamePattern.MatchString(m.Name) {
			return nil, fmt.Errorf("invalid method name in methods file")
		}
		if _, dup := c.methods[m.Name]; dup {
			return nil, fmt.Errorf("duplicate method %q", m.Name)
		}
		prog, err := goja.Compile(m.Name, m.Script, true)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
		m.program = prog
		c.methods[m.Name] = m
		c.names = append(c.names, m.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Get looks up a method by name.
func (c *Catalog) Get(name string) (*Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Infos lists every method, sorted by name.
func (c *Catalog) Infos() []MethodInfo {
	out := make([]MethodInfo, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.methods[name].Info())
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.names)
}

// Run calls the method's estimate function with input. Every declared
// parameter must be present in input. Execution is interrupted when ctx is
// done or timeout elapses.
func (m *Method) Run(ctx context.Context, input map[string]any, timeout time.Duration) (any, error) {
	for _, p := range m.Params {
		if _, ok := input[p]; !ok {
			return nil, errors.MissingParameter(p)
		}
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	done := make(chan struct{})
	defer close(done)
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			vm.Interrupt("execution timeout")
		case <-ctx.Done():
			vm.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()

	if _, err := vm.RunProgram(m.program); err != nil {
		return nil, scriptError(m.Name, err)
	}
	fn, ok := goja.AssertFunction(vm.Get(EntryPoint))
	if !ok {
		return nil, errors.Internal(fmt.Sprintf("method %s does not define %s()", m.Name, EntryPoint), nil)
	}
	result, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		return nil, scriptError(m.Name, err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	out := result.Export()
	if _, err := json.Marshal(out); err != nil {
		return nil, errors.InvalidInput("inputs", fmt.Sprintf("method %s produced a result that is not valid JSON: %v", m.Name, err))
	}
	return out, nil
}

// scriptError maps script failures: exceptions thrown by the script reject
// the input, interrupts and other failures are internal.
func scriptError(method string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return errors.Internal(fmt.Sprintf("method %s interrupted: %v", method, interrupted.Value()), err)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return errors.InvalidInput("inputs", exc.Value().String())
	}
	return errors.Internal(fmt.Sprintf("method %s failed", method), err)
}
