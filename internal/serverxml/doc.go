// Package serverxml adds a HealthCheckValve to a Tomcat server.xml document.
//
// The document is treated as plain text. The valve element is inserted as a
// new line immediately before the last line containing the </Host> closing
// tag, which places it inside the last Host of the configuration. All other
// lines, including their terminators, are preserved byte for byte.
//
// When no </Host> line exists the document is returned unchanged. Strict mode
// reports that case as [ErrMarkerNotFound] instead.
//
// Example usage:
//
//	res, err := serverxml.Patch(doc, serverxml.Options{})
//	if err != nil {
//	    return err
//	}
//	if !res.Inserted {
//	    slog.Warn("no </Host> found")
//	}
package serverxml
