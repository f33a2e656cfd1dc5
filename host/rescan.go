package host

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/scstools/compellent/shared/logger"
)

// RescanSCSIHosts triggers a SCSI bus rescan on every SCSI host adapter so
// newly mapped volumes become visible without a reboot.
func RescanSCSIHosts(r Runner) error {
	output, err := r.Run("ls", "/sys/class/scsi_host")
	if err != nil {
		return fmt.Errorf("Failed to list SCSI host adapters: %w", err)
	}

	rescanned := 0
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		for _, adapter := range strings.Fields(scanner.Text()) {
			err := r.WriteFile(fmt.Sprintf("/sys/class/scsi_host/%s/scan", adapter), "- - -\n")
			if err != nil {
				return fmt.Errorf("Failed to rescan SCSI host %q: %w", adapter, err)
			}

			rescanned++
		}
	}

	logger.Info("Rescanned SCSI host adapters", logger.Ctx{"count": rescanned})

	return nil
}
