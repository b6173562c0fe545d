// Command tomasim runs a demo program on the out-of-order scheduling
// core and reports the architectural result.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/frostlab/tomasim/insn"
	"github.com/frostlab/tomasim/mem/idealmemcontroller"
	"github.com/frostlab/tomasim/monitoring"
	"github.com/frostlab/tomasim/sim"
	"github.com/frostlab/tomasim/sim/directconnection"
	"github.com/frostlab/tomasim/tomasulo/core"
	"github.com/frostlab/tomasim/tomasulo/frontend"
	"github.com/frostlab/tomasim/trace"
)

var (
	robDepth    int
	memLatency  int
	traceDB     string
	withTrace   bool
	withMonitor bool
	monitorPort int
)

var rootCmd = &cobra.Command{
	Use:   "tomasim",
	Short: "Out-of-order scheduling core simulator",
	Long: `tomasim runs a demo program on a Tomasulo-style scheduling core
with a reorder buffer, register renaming, reservation stations, and a
load/store queue, backed by an ideal memory controller.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	// Optional overrides, e.g. TOMASIM_MONITOR_PORT.
	_ = godotenv.Load()

	rootCmd.Flags().IntVar(&robDepth, "rob-depth", 32,
		"reorder buffer depth, must be a power of two")
	rootCmd.Flags().IntVar(&memLatency, "mem-latency", 2,
		"memory controller latency in cycles")
	rootCmd.Flags().BoolVar(&withTrace, "trace", false,
		"record the commit stream into a SQLite database")
	rootCmd.Flags().StringVar(&traceDB, "trace-db", "",
		"trace database path, a unique name is picked when empty")
	rootCmd.Flags().BoolVar(&withMonitor, "monitor", false,
		"serve the monitoring API over HTTP")
	rootCmd.Flags().IntVar(&monitorPort, "monitor-port",
		envInt("TOMASIM_MONITOR_PORT", 0),
		"monitoring server port, random when 0")
}

func envInt(name string, dflt int) int {
	s := os.Getenv(name)
	if s == "" {
		return dflt
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return dflt
	}

	return v
}

func run() error {
	engine := sim.NewSerialEngine()

	conn := directconnection.MakeBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		Build("Conn")

	memCtrl := idealmemcontroller.MakeBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithLatency(memLatency).
		WithNewStorage(1 << 20).
		Build("MemCtrl")

	c := core.MakeBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithMemCtrl(memCtrl.TopPort().AsRemote()).
		WithROBDepth(robDepth).
		Build("Core")

	fe := frontend.MakeBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		WithCorePort(c.DispatchPort().AsRemote()).
		WithProgram(sumProgram(10, 0x200), 0).
		Build("FrontEnd")

	conn.PlugIn(memCtrl.TopPort())
	conn.PlugIn(c.DispatchPort())
	conn.PlugIn(c.CtrlPort())
	conn.PlugIn(c.MemPort())
	conn.PlugIn(fe.ToCore())

	if withTrace {
		recorder := trace.NewRecorder(traceDB)
		c.AcceptHook(trace.NewTracer(engine, recorder))
	}

	if withMonitor {
		monitor := monitoring.NewMonitor()
		monitor.WithPortNumber(monitorPort)
		monitor.RegisterEngine(engine)
		monitor.RegisterComponent(c)
		monitor.RegisterComponent(memCtrl)
		monitor.RegisterComponent(fe)
		monitor.StartServer()
	}

	fe.TickLater()

	if err := engine.Run(); err != nil {
		return err
	}

	fmt.Printf("Simulated time: %.9fs\n", float64(engine.CurrentTime()))
	fmt.Printf("Instructions dispatched: %d\n", fe.Dispatched())
	fmt.Printf("Redirects: %d\n", len(fe.Redirects()))
	fmt.Printf("Sum in x1: %d\n", c.IntReg(1))

	return nil
}

// sumProgram computes the sum of 1..n in x1 with a counted loop and
// stores the result to resultAddr. The loop branch is predicted taken,
// so the final iteration mispredicts and exercises recovery.
func sumProgram(n uint32, resultAddr uint64) []insn.Inst {
	addImm := func(pc uint64, dest, src int, imm uint64) insn.Inst {
		return insn.Inst{
			PC: pc, Op: insn.OpAdd,
			Src1: src, Src1Valid: true,
			Dest: dest, DestValid: true,
			Imm: imm, UseImm: true,
		}
	}

	return []insn.Inst{
		addImm(0, 1, 0, 0),           // x1 = 0 (sum)
		addImm(4, 2, 0, 1),           // x2 = 1 (i)
		addImm(8, 3, 0, uint64(n)+1), // x3 = n+1 (limit)
		{
			PC: 12, Op: insn.OpAdd, // x1 += x2
			Src1: 1, Src1Valid: true,
			Src2: 2, Src2Valid: true,
			Dest: 1, DestValid: true,
		},
		addImm(16, 2, 2, 1), // x2++
		{
			PC: 20, Op: insn.OpBlt, // while x2 < x3
			Src1: 2, Src1Valid: true,
			Src2: 3, Src2Valid: true,
			BranchTarget:    12,
			PredictedTaken:  true,
			PredictedTarget: 12,
		},
		{
			PC: 24, Op: insn.OpStore, // store x1 to resultAddr
			Src1: 0, Src1Valid: true,
			Src2: 1, Src2Valid: true,
			Imm: resultAddr, MemSize: insn.MemSizeWord,
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
