package observability

import (
	"testing"

	"github.com/torsteingrindvik/serial-keel/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordFrame("async")
	RecordFrame("control")
	RecordControlReply("control-granted")
	RecordAsyncMessage()
	RecordWriteAck()
	SetControlledEndpoints(2)
	SetMailboxDepth("mock: example", 3)
}
