// Provides default locations used by tomcatconf.
//
// The config file follows XDG conventions on Linux and platform-native
// conventions on macOS and Windows, under a "tomcatconf" subdirectory. Local
// Tomcat paths mirror the layout of the DSpace infrastructure checkout the
// tool runs from.
package paths
