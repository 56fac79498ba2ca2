package mcpserver

// RoutingRules describes how source files map onto the output tree. It is
// served as a resource so clients can reason about classify_path results.
const RoutingRules = `# typsite routing rules

Every file under the content root is classified in this order:

1. **Passthrough.** The path relative to the content root matches one of
   ` + "`site.passthrough`" + ` (doublestar globs, case-sensitive, ` + "`*`" + ` never crosses
   ` + "`/`" + `, leading dots match). The file is copied byte for byte to the same
   relative path under the output root.
2. **Noop.** The file does not end in ` + "`.typ`" + `.
3. **RecompileAll.** The file lives under the template root. Every document
   is rebuilt.
4. **CompileToPath.** The file lives under the content root.
   - ` + "`index.typ`" + ` becomes ` + "`index.html`" + ` in the same directory.
   - With ` + "`site.literal_paths`" + `, ` + "`page.typ`" + ` becomes ` + "`page.html`" + `.
   - Otherwise ` + "`page.typ`" + ` becomes ` + "`page/index.html`" + `.

Paths outside both roots are rejected.
`
