// Package archive defines the domain model shared by the bundle archiver: versions,
// artifact kinds and references, captured blobs, site definitions, and the narrow
// interfaces (Store, Locker, Capturer, Clock, Publisher, Mirror) that the refresh
// planner and source locator are written against.
//
// On disk an archive looks like:
//
//	<root>/<timestamp>-<semver>/<domain>.<kind>.js[.gz]
//	<root>/last     current pointer (folder name, plain text)
//	<root>/locked   lock marker (RFC 3339 timestamp)
package archive
