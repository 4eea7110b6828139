package util

import (
	"fmt"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/orbstack/runvm/util/pspawn"
)

// Run executes combinedArgs[0] with the rest as arguments, in its own
// session so an interactive child doesn't propagate Ctrl-C oddly to us.
func Run(combinedArgs ...string) (string, error) {
	logrus.Tracef("run: %v", combinedArgs)
	cmd := pspawn.Command(combinedArgs[0], combinedArgs[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("run command %v: %w; output: %s", combinedArgs, err, string(output))
	}
	return string(output), nil
}
