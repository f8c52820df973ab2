package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dougsko/rx320d/pkg/client"
	"github.com/dougsko/rx320d/pkg/hardware"
)

var (
	address   = flag.String("addr", "127.0.0.1:4665", "rx320d control address")
	command   = flag.String("cmd", "", "Command to send (e.g., 'FREQ 7000000', 'GETSMETER')")
	timeout   = flag.Duration("timeout", 5*time.Second, "Per-command timeout")
	listPorts = flag.Bool("list-ports", false, "List serial ports and exit")
)

func main() {
	flag.Parse()

	if *listPorts {
		ports, err := hardware.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, port := range ports {
			fmt.Println(port)
		}
		return
	}

	if *command == "" && len(flag.Args()) > 0 {
		*command = strings.Join(flag.Args(), " ")
	}

	c := client.NewClient(*address)
	c.SetTimeout(*timeout)
	defer c.Close()

	if *command != "" {
		if err := send(c, *command, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Without a command, read one command per line from stdin
	if stat, err := os.Stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
		showHelp()
		return
	}
	if err := sendLines(c, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func send(c *client.Client, cmd string, out io.Writer) error {
	reply, err := c.SendCommand(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, reply)
	return nil
}

func sendLines(c *client.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := send(c, line, out); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func showHelp() {
	fmt.Println("rx320ctl - RX-320 Daemon Control Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Printf("  %s [options] < commands.txt\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -addr <host:port>   Control address (default: 127.0.0.1:4665)")
	fmt.Println("  -cmd <command>      Command to send")
	fmt.Println("  -timeout <d>        Per-command timeout (default: 5s)")
	fmt.Println("  -list-ports         List serial ports")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  ALL <freq> <mode> <filter>   Set mode, filter, then frequency")
	fmt.Println("  FREQ <hz>                    Tune")
	fmt.Println("  MODE <0-4>                   0=AM 1=USB 2=LSB 3=CW")
	fmt.Println("  FILTER <0-33>                Filter index")
	fmt.Println("  AGC <0-3>                    1=slow 2=medium 3=fast")
	fmt.Println("  VOL <0-63>                   Speaker volume")
	fmt.Println("  LINEVOL <0-63>               Line volume")
	fmt.Println("  GETFREQ GETMODE GETFILTER GETAGC GETVOL GETLINEVOL GETSMETER")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s ALL 3630000 2 16\n", os.Args[0])
	fmt.Printf("  %s GETSMETER\n", os.Args[0])
	fmt.Printf("  echo GETFREQ | nc localhost 4665\n")
}
