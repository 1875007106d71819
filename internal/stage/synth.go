package stage

import (
	"fmt"
	"regexp"
	"strings"

	"utforge/internal/csrc"
	"utforge/internal/extract"
)

var definedFuncRe = regexp.MustCompile(`(?m)^\s*void\s+(\w+)\s*\(\s*(?:void)?\s*\)\s*\{`)

// collectBodies gathers distinct test code blocks from the bundle's records.
// Whole-script fallbacks repeat across records, so dedup is on content.
func collectBodies(bundle *extract.TestArtifactBundle) []string {
	seen := make(map[string]bool)
	var bodies []string
	for _, rec := range bundle.TestCases {
		code := strings.TrimSpace(rec.TestCode)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		bodies = append(bodies, code)
	}
	return bodies
}

// definedNames lists the functions actually defined across the bodies.
// RUN_TEST is only emitted for these; a record whose name never became a
// symbol would otherwise break the link.
func definedNames(bodies []string) map[string]bool {
	names := make(map[string]bool)
	for _, body := range bodies {
		for _, m := range definedFuncRe.FindAllStringSubmatch(body, -1) {
			names[m[1]] = true
		}
	}
	return names
}

func writePreamble(b *strings.Builder, headers []string, funcs []csrc.CFunction) {
	if len(funcs) > 0 {
		b.WriteString("/* Functions under test:\n")
		for _, f := range funcs {
			fmt.Fprintf(b, " *   %s (%s:%d)\n", f.Name, f.File, f.StartLine)
		}
		b.WriteString(" */\n")
	}
	b.WriteString("#include \"unity.h\"\n")
	for _, h := range headers {
		fmt.Fprintf(b, "#include %q\n", h)
	}
	b.WriteString("\n")
}

// synthesizeSuite emits the extracted test bodies as a standalone
// compilation unit, for use next to an extracted runner.
func synthesizeSuite(bundle *extract.TestArtifactBundle, headers []string) string {
	bodies := collectBodies(bundle)
	if len(bodies) == 0 {
		return ""
	}

	var b strings.Builder
	writePreamble(&b, headers, nil)
	joined := strings.Join(bodies, "\n\n")
	if !strings.Contains(joined, "void setUp(") {
		b.WriteString("void setUp(void) {}\n")
	}
	if !strings.Contains(joined, "void tearDown(") {
		b.WriteString("void tearDown(void) {}\n")
	}
	b.WriteString("\n")
	b.WriteString(joined)
	b.WriteString("\n")
	return b.String()
}

// synthesizeRunner emits a complete Unity runner: test bodies plus a main
// that registers every function the bodies define, in record order.
func synthesizeRunner(bundle *extract.TestArtifactBundle, headers []string, funcs []csrc.CFunction) string {
	bodies := collectBodies(bundle)
	defined := definedNames(bodies)

	var b strings.Builder
	writePreamble(&b, headers, funcs)

	joined := strings.Join(bodies, "\n\n")
	if !strings.Contains(joined, "void setUp(") {
		b.WriteString("void setUp(void) {}\n")
	}
	if !strings.Contains(joined, "void tearDown(") {
		b.WriteString("void tearDown(void) {}\n")
	}
	b.WriteString("\n")
	b.WriteString(joined)
	b.WriteString("\n\nint main(void) {\n    UNITY_BEGIN();\n")

	emitted := make(map[string]bool)
	for _, rec := range bundle.TestCases {
		name := rec.FunctionName
		if name == "" || emitted[name] {
			continue
		}
		emitted[name] = true
		if !defined[name] {
			// The record's name never became a symbol. Keep it visible in
			// the runner so the gap is traceable from the artifact alone.
			fmt.Fprintf(&b, "    /* unmapped: %s */\n", name)
			continue
		}
		fmt.Fprintf(&b, "    RUN_TEST(%s);\n", name)
	}
	b.WriteString("    return UNITY_END();\n}\n")
	return b.String()
}

// synthesizeMakefile builds the default Makefile: coverage-instrumented
// compile, a test target that runs the binary, and a coverage target that
// invokes gcov on every source.
func synthesizeMakefile(sources []string) string {
	var b strings.Builder
	b.WriteString("CC      = gcc\n")
	b.WriteString("CFLAGS  = -Wall --coverage -O0 -g\n")
	fmt.Fprintf(&b, "SRCS    = %s\n", strings.Join(sources, " "))
	b.WriteString("TARGET  = test_bin\n")
	b.WriteString("\n")
	b.WriteString("all: $(TARGET)\n")
	b.WriteString("\n")
	b.WriteString("$(TARGET): $(SRCS)\n")
	b.WriteString("\t$(CC) $(CFLAGS) -o $(TARGET) $(SRCS)\n")
	b.WriteString("\n")
	b.WriteString("test: $(TARGET)\n")
	b.WriteString("\t./$(TARGET)\n")
	b.WriteString("\n")
	b.WriteString("coverage:\n")
	b.WriteString("\tgcov $(SRCS)\n")
	b.WriteString("\n")
	b.WriteString("clean:\n")
	b.WriteString("\trm -f $(TARGET) *.gcda *.gcno *.gcov\n")
	return b.String()
}
