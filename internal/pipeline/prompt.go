package pipeline

import (
	"fmt"
	"strings"

	"utforge/internal/csrc"
	"utforge/internal/stage"
)

const systemPrompt = `You are an expert embedded C test engineer. You write exhaustive, buildable unit tests using the Unity test framework (unity.h) and you follow output format instructions exactly.`

// BuildPrompt assembles the generation prompt: the sources under test, the
// scanned function inventory, the required artifacts, and the output
// contract. The final JSON block mirrors the table so a structured parse can
// recover everything even when the prose around it is mangled.
func BuildPrompt(sources []stage.SourceFile, funcs []csrc.CFunction, hints string) (system, user string) {
	var b strings.Builder

	b.WriteString("Generate Unity unit tests for the following C code.\n\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "--- %s ---\n```c\n%s\n```\n\n", src.Filename, strings.TrimRight(src.Content, "\n"))
	}

	if len(funcs) > 0 {
		b.WriteString("Functions that must be covered:\n")
		for _, f := range funcs {
			fmt.Fprintf(&b, "- %s (%s:%d)\n", f.Name, f.File, f.StartLine)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Rules:
1. Every test function is named test_<function>_<scenario> and takes no arguments.
2. Cover positive, negative, and boundary cases for each function.
3. Use only Unity assertions (TEST_ASSERT_*). No other test framework.
4. The tests must compile with gcc against the code above without edits.

Produce, in this order:
1. A markdown table with columns: Test Case ID | Unit Test Function Name | Description | Input Data | Expected Output / Behavior | Type (Positive / Negative).
2. The complete test script in a single ` + "```c" + ` block (all test functions, setUp, tearDown).
3. The test runner (main with UNITY_BEGIN, RUN_TEST for every test, UNITY_END) in its own ` + "```c" + ` block.
4. A Makefile in a ` + "```makefile" + ` block compiling everything with gcc --coverage -O0 -g.
5. Last, a single JSON object mirroring everything above, with keys:
   "table_rows" (array of objects keyed by the table column names),
   "test_script_c" (the full test script as a string),
   "test_runner_c" (the runner as a string),
   "makefile_content" (the Makefile as a string).
   Emit this JSON object as the final thing in your reply, after all other output.
`)

	if hints != "" {
		b.WriteString("\nAdditional instructions:\n")
		b.WriteString(hints)
		b.WriteString("\n")
	}

	return systemPrompt, b.String()
}
