package provider

import (
	"os/exec"
	"runtime"
)

// openBrowser launches the default system browser with the given url.
// Failure is not fatal for the flow, the url is always logged so the user
// can open it manually.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
