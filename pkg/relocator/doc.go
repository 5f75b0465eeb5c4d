// Package relocator moves the packages of a jar under new names.
//
// A relocation maps a package prefix to a shaded prefix. Every class and
// resource below the prefix is written under the shaded prefix, and every
// class file in the jar is rewritten so that references to relocated classes
// follow them: the class names in the constant pool, field and method
// descriptors, generic signatures and string constants naming a class.
//
// # Basic Usage
//
// Relocate a jar in place:
//
//	import "github.com/open-policy-agent/jar-relocator/pkg/relocator"
//
//	shaded := "com.acme.shaded.guava"
//	r := relocator.New().
//	    WithRelocations([]relocator.Relocation{{
//	        Pattern:       "com.google.common",
//	        ShadedPattern: &shaded,
//	    }})
//
//	result, err := r.Relocate(ctx, "target/app.jar")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The jar is replaced only after its relocated copy has been written
// completely. On any error, including cancellation of ctx, the original jar
// is left untouched.
//
// # Patterns
//
// Patterns may be given in dotted ("com.foo") or slashed ("com/foo") form.
// A nil ShadedPattern relocates to "hidden." followed by the pattern.
// Relocations are tried in order and the first one that applies wins, so
// more specific patterns must come first:
//
//	relocator.New().WithRelocations([]relocator.Relocation{
//	    {Pattern: "com.foo.internal", ShadedPattern: &internal},
//	    {Pattern: "com.foo", ShadedPattern: &shaded},
//	})
//
// Includes and Excludes restrict a relocation to matching class names. They
// are Ant style globs in dotted or slashed form: "*" matches within one
// package, "**" across packages. A pattern ending in ".*" or ".**" also
// matches the package itself.
//
//	{
//	    Pattern:  "org.slf4j",
//	    Excludes: []string{"org.slf4j.spi.*"},
//	}
//
// # Dry Runs
//
// Plan reports where each entry would be written without modifying the jar:
//
//	mappings, err := r.Plan("target/app.jar")
//	for _, m := range mappings {
//	    fmt.Println(m.Original, "->", m.Mapped, m.Kind)
//	}
//
// # Thread Safety
//
// A Relocator may be used by several goroutines once configured, provided
// each call works on a different jar.
package relocator
