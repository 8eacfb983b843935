// Package conveyor describes the tunable parameters of the conveyor-belt model and the declarations that bind
// them in its system region.
package conveyor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/G-Research/vericampaign/internal/campaign/space"
)

const (
	Speed              = "speed"
	Disks              = "disks"
	Policy             = "policy"
	OutSensors         = "out_sensors"
	StationsProcessing = "stations_processing"

	NumOutSensors = 5
	NumStations   = 6
)

// Schema lists the parameters in the order they are swept and named.
var Schema = space.Schema{
	{Name: Speed, Key: "s"},
	{Name: Disks, Key: "d"},
	{Name: Policy, Key: "p"},
	{Name: OutSensors, Key: "os", Arity: NumOutSensors},
	{Name: StationsProcessing, Key: "sp", Arity: NumStations},
}

// Wiring that does not depend on any parameter.
var staticDeclarations = []string{
	"",
	"const SlotId POS_IN_SENSORS_IN_ORDER[STATIONS] = {POS_IN_SENSORS[0], POS_IN_SENSORS[1], POS_IN_SENSORS[3], POS_IN_SENSORS[2], POS_IN_SENSORS[4], POS_IN_SENSORS[5]};",
	"const OutSensorId OUT_SENSORS_ID_IN_ORDER[STATIONS] = {1, 2, 4, 3, 4, 0};",
	"const StationId IN_SENSORS_STATION[IN_SENSORS] = {0, 1, 3, 2, 4, 5};",
	"",
	"initializer = Initializer(DISKS);",
	"motor = Motor(SPEED);",
	"conveyorBelt = ConveyorBelt();",
	"station(const StationId id) = Station(id, POS_STATIONS[id], STATIONS_ELABORATION_TIME[id], POS_IN_SENSORS_IN_ORDER[id], OUT_SENSORS_ID_IN_ORDER[id]);",
	"inSensor(const InSensorId id) = InSensor(id, IN_SENSORS_STATION[id]);",
	"outSensor(const OutSensorId id) = OutSensor(id, POS_OUT_SENSORS[id]);",
	"",
}

const systemLine = "system initializer, motor, conveyorBelt, station, inSensor, outSensor, flowController;"

// Wiring renders the system region of the conveyor-belt template for an assignment of Schema.
type Wiring struct{}

// Declarations returns the lines replacing the system region, in the order the template requires: the parameter
// constants first, then the fixed sensor and station wiring, then the flow controller selected by the policy.
func (Wiring) Declarations(a space.Assignment) []string {
	lines := make([]string, 0, len(staticDeclarations)+6)
	lines = append(lines,
		fmt.Sprintf("const int SPEED = %d;", a.Scalar(Speed)),
		fmt.Sprintf("const int[1, 12] DISKS = %d;", a.Scalar(Disks)),
		fmt.Sprintf("const SlotId POS_OUT_SENSORS[OUT_SENSORS] = %s;", initializer(a[OutSensors])),
		fmt.Sprintf("const int STATIONS_ELABORATION_TIME[STATIONS] = %s;", initializer(a[StationsProcessing])),
	)
	lines = append(lines, staticDeclarations...)
	lines = append(lines, flowController(a.Scalar(Policy)), systemLine)
	return lines
}

// Policy 0 is the only controller parameterised by sensor positions.
func flowController(policy int) string {
	if policy == 0 {
		return "flowController = FlowController_0(POS_OUT_SENSORS[2], POS_OUT_SENSORS[3]);"
	}
	return fmt.Sprintf("flowController = FlowController_%d();", policy)
}

func initializer(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
