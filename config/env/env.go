// Package env loads typed configuration from environment variables,
// keeping track of every variable asked for so a CLI can print them all
// with their defaults.
package env

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/spantrap/harness/config/secret"
)

// Var describes one environment variable a Loader was asked for.
type Var struct {
	name string
	kind string
	def  interface{}
}

func (v Var) String() string {
	return fmt.Sprintf("%-40s %-12s (%v)", v.name, v.kind, v.def)
}

func (v Var) Name() string {
	return v.name
}

// Loader populates config fields from the environment. Parse problems are
// collected on a multi error rather than failing fast, so one run reports
// every bad variable. Check Err once loading is done.
type Loader struct {
	seen map[string]Var // every var this loader has been asked to load
	err  error
}

func NewLoader() *Loader {
	return &Loader{
		seen: make(map[string]Var),
	}
}

func (l *Loader) Err() error {
	return l.err
}

// SecretFromFile reads the file named by the env var into dst. Note the
// default is the secret content, not a file path. An unset or empty env
// var leaves the default in place, a read failure also records an error.
func (l *Loader) SecretFromFile(dst *secret.String, env string) {
	l.record(*dst, env, "file")
	fn, ok := os.LookupEnv(env)
	if !ok || fn == "" {
		return
	}
	content, err := os.ReadFile(fn) // #nosec G304 - reading secrets from files is the whole point here
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("reading secret file: %w", err))
		return
	}
	*dst = secret.String(content)
}

// String sets dst from the env var when it is set.
func (l *Loader) String(dst *string, env string) {
	l.record(*dst, env, "string")
	raw, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	*dst = raw
}

// Int sets dst from the env var when it is set, parsed as per Atoi.
// On a parse failure dst keeps its value and the error is recorded.
func (l *Loader) Int(dst *int, env string) {
	l.record(*dst, env, "int")
	raw, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(env, err)
		return
	}
	*dst = i
}

// Bool sets dst from the env var when it is set, accepting the usual
// truthy and falsy spellings as per ParseBool. On a parse failure dst
// keeps its value and the error is recorded.
func (l *Loader) Bool(dst *bool, env string) {
	l.record(*dst, env, "bool")
	raw, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.fail(env, err)
		return
	}
	*dst = b
}

// Duration sets dst from the env var when it is set, parsed as per
// time.ParseDuration. On a parse failure dst keeps its value and the
// error is recorded.
func (l *Loader) Duration(dst *time.Duration, env string) {
	l.record(*dst, env, "Duration")
	raw, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(env, err)
		return
	}
	*dst = d
}

type Vars []Var

// Sort orders v in place by variable name.
func (v Vars) Sort() {
	sort.Slice(v, func(i, j int) bool {
		return v[i].name < v[j].name
	})
}

// SortUnique drops duplicate names from v and sorts what is left in place
// alphabetically. The receiver may shrink.
func (v *Vars) SortUnique() {
	byName := map[string]Var{}
	for _, vr := range *v {
		byName[vr.Name()] = vr
	}
	// the deduplicated set can never be bigger, so reuse the backing array
	*v = (*v)[:len(byName)]
	i := 0
	for _, vr := range byName {
		(*v)[i] = vr
		i++
	}
	v.Sort()
}

// VarsUsed returns every variable this loader was asked for, sorted, with
// long string defaults flattened and truncated for help output.
func (l *Loader) VarsUsed() Vars {
	used := make(Vars, 0, len(l.seen))
	const maxDefaultLen = 80
	for _, v := range l.seen {
		if def, ok := v.def.(string); ok {
			def = strings.Replace(def, "\n", "\\n", -1)
			if len(def) > maxDefaultLen {
				def = def[:maxDefaultLen] + " ..."
			}
			v.def = def
		}
		used = append(used, v)
	}
	used.Sort()
	return used
}

// ChangeDefault rewrites the recorded default for env, for cases where the
// real default is computed after loading. Unknown names are ignored.
func (l *Loader) ChangeDefault(env, def string) {
	prev, ok := l.seen[env]
	if !ok {
		return
	}
	prev.def = def
	l.seen[env] = prev
}

func (l *Loader) fail(env string, err error) {
	l.err = multierror.Append(l.err, fmt.Errorf("env var %q: %w", env, err))
}

func (l *Loader) record(def interface{}, name, kind string) {
	if _, ok := l.seen[name]; ok {
		panic("duplicate environment variable " + name)
	}
	l.seen[name] = Var{
		name: name,
		kind: kind,
		def:  def,
	}
}
