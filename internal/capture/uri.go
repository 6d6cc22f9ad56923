package capture

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/platewatch/platewatch/internal/datastore"
)

// BuildURI resolves a camera to its RTSP URI. Credentials are embedded only
// when both username and password are set.
func BuildURI(cam datastore.Camera) string {
	port := cam.Port
	if port == 0 {
		port = datastore.DefaultCameraPort
	}
	path := cam.StreamPath
	if path == "" {
		path = datastore.DefaultStreamPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := url.URL{
		Scheme: "rtsp",
		Host:   net.JoinHostPort(cam.Address, strconv.Itoa(port)),
	}
	if cam.Username != "" && cam.Password != "" {
		u.User = url.UserPassword(cam.Username, cam.Password)
	}

	// Query strings in the stream path, e.g. /cam?channel=1, are kept as written
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u.Path = path[:i]
		u.RawQuery = path[i+1:]
	} else {
		u.Path = path
	}
	return u.String()
}
