package server

import "strings"

// reloadScript is spliced into every served HTML page. It reconnects with a
// short delay so a server restart picks existing tabs back up.
const reloadScript = `<script>
(function() {
	var proto = location.protocol === "https:" ? "wss://" : "ws://";
	function connect() {
		var socket = new WebSocket(proto + location.host + "/ws");
		socket.onmessage = function(ev) {
			var msg = JSON.parse(ev.data);
			if (msg.type === "build_error" && msg.content) {
				console.error(msg.content);
			}
			if (msg.type === "reload" || msg.type === "build_error") {
				location.reload();
			}
		};
		socket.onclose = function() { setTimeout(connect, 1000); };
	}
	connect();
})();
</script>`

// previewShell wraps an isolated component render. The format arguments are
// the component id (title) and its HTML.
const previewShell = `<!DOCTYPE html>
<html>
<head><title>Preview: %s</title></head>
<body>
%s
</body>
</html>
`

// injectLiveReload adds the reload script to an HTML document.
func injectLiveReload(page string) string {
	return injectBeforeBodyClose(page, reloadScript)
}

// injectBeforeBodyClose splices fragment in front of the closing body tag,
// appending when the document has none.
func injectBeforeBodyClose(page, fragment string) string {
	lower := strings.ToLower(page)
	idx := strings.LastIndex(lower, "</body>")
	if idx < 0 {
		return page + fragment
	}
	return page[:idx] + fragment + page[idx:]
}
