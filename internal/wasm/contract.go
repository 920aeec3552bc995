package wasm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/timetable-bridge/pkg/protocol"
)

// FunctionSignature is a named function type as seen in a compiled module.
type FunctionSignature struct {
	Module  string   `json:"module,omitempty" yaml:"module,omitempty"`
	Name    string   `json:"name" yaml:"name"`
	Params  []string `json:"params" yaml:"params"`
	Results []string `json:"results" yaml:"results"`
}

func (s FunctionSignature) String() string {
	name := s.Name
	if s.Module != "" {
		name = s.Module + "." + s.Name
	}
	return fmt.Sprintf("%s(%s) -> (%s)", name, strings.Join(s.Params, ", "), strings.Join(s.Results, ", "))
}

// ContractReport describes how a compiled guest matches the host/guest
// contract. The guest is usable only when Problems is empty.
type ContractReport struct {
	Imports  []FunctionSignature `json:"imports" yaml:"imports"`
	Exports  []FunctionSignature `json:"exports" yaml:"exports"`
	Memory   bool                `json:"memory" yaml:"memory"`
	Problems []string            `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// OK reports whether the guest satisfies the contract.
func (r *ContractReport) OK() bool {
	return len(r.Problems) == 0
}

// CheckContract inspects the imports and exports of a compiled guest module
// against the typed callback table and required exports.
func CheckContract(compiled wazero.CompiledModule) *ContractReport {
	report := &ContractReport{}

	for _, def := range compiled.ImportedFunctions() {
		moduleName, name, _ := def.Import()
		sig := signatureOf(moduleName, name, def)
		report.Imports = append(report.Imports, sig)

		if moduleName != protocol.ImportModule {
			report.Problems = append(report.Problems,
				fmt.Sprintf("import %s: host does not provide module %q", sig, moduleName))
			continue
		}
		want, ok := protocol.Callbacks[name]
		if !ok {
			report.Problems = append(report.Problems,
				fmt.Sprintf("import %s: unknown host callback", sig))
			continue
		}
		if !matches(def, want) {
			report.Problems = append(report.Problems,
				fmt.Sprintf("import %s: signature mismatch, want %s", sig, expected(moduleName, name, want)))
		}
	}

	exports := compiled.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report.Exports = append(report.Exports, signatureOf("", name, exports[name]))
	}

	for _, name := range []string{protocol.ExportAlloc, protocol.ExportParse} {
		want := protocol.Exports[name]
		def, ok := exports[name]
		if !ok {
			report.Problems = append(report.Problems, fmt.Sprintf("missing export %q", name))
			continue
		}
		if !matches(def, want) {
			report.Problems = append(report.Problems,
				fmt.Sprintf("export %s: signature mismatch, want %s", signatureOf("", name, def), expected("", name, want)))
		}
	}

	if _, ok := compiled.ExportedMemories()[protocol.ExportMemory]; ok {
		report.Memory = true
	} else {
		report.Problems = append(report.Problems, fmt.Sprintf("missing memory export %q", protocol.ExportMemory))
	}

	return report
}

func signatureOf(moduleName, name string, def api.FunctionDefinition) FunctionSignature {
	return FunctionSignature{
		Module:  moduleName,
		Name:    name,
		Params:  valueTypeNames(def.ParamTypes()),
		Results: valueTypeNames(def.ResultTypes()),
	}
}

func expected(moduleName, name string, sig protocol.Signature) FunctionSignature {
	out := FunctionSignature{Module: moduleName, Name: name}
	for _, p := range sig.Params {
		out.Params = append(out.Params, p.String())
	}
	for _, r := range sig.Results {
		out.Results = append(out.Results, r.String())
	}
	return out
}

func matches(def api.FunctionDefinition, want protocol.Signature) bool {
	return sameTypes(def.ParamTypes(), want.Params) && sameTypes(def.ResultTypes(), want.Results)
}

func sameTypes(got []api.ValueType, want []protocol.ValueType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != api.ValueType(want[i]) {
			return false
		}
	}
	return true
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}
