// Package introspect turns a Go type into a class descriptor: the ordered list
// of its members that carry hook markers.
//
// Go has no annotations, so markers come from two places:
//
//   - struct fields declare markers in the `hook` struct tag, and member
//     flags such as `final` in the `member` tag:
//
//     type Server struct {
//         Log  *slog.Logger `hook:"logger"`
//         Port int          `hook:"setting,key=port" member:"final"`
//     }
//
//   - methods, type-level markers and static (package-level) members are
//     declared through an explicit registration API implemented by the type
//     itself: HookMethods, HookTypes and HookStatics.
//
// An Introspector is the pluggable capability that produces a Class. The
// Reflective introspector derives it at runtime and caches the result per
// type; the Table introspector serves descriptors registered ahead of time,
// for example by generated code.
package introspect
