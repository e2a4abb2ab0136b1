package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fishwaldo/GnssTester/internal/channel"
	"github.com/bombsimon/logrusr/v2"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// record copies every line read from ch to w until ctx is done, the
// duration is over or ch fails. Read timeouts only mean the receiver was
// quiet.
func record(ctx context.Context, ch channel.LineChannel, w io.Writer, duration time.Duration, now func() time.Time, log logr.Logger) (int, error) {
	var deadline *time.Time
	if duration > 0 {
		d := now().Add(duration)
		deadline = &d
	}
	lines := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("Caught Signal - Exiting...")
			return lines, nil
		default:
		}
		if deadline != nil && !now().Before(*deadline) {
			return lines, nil
		}
		line, err := ch.ReadLine(time.Second)
		if len(line) > 0 {
			if _, werr := w.Write(line); werr != nil {
				return lines, werr
			}
			lines++
			if lines%100 == 0 {
				log.V(1).Info("Recorded", "lines", lines)
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, channel.ErrReadTimeout):
			log.V(1).Info("No Data From Receiver")
		case errors.Is(err, io.EOF):
			return lines, nil
		default:
			return lines, err
		}
	}
}

func main() {
	port := pflag.StringP("serial", "s", "/dev/ttyACM0", "serial port the receiver is attached to")
	baud := pflag.Uint("baud", 9600, "serial port speed")
	driver := pflag.String("driver", channel.DriverJacobsa, "serial driver: jacobsa or tarm")
	out := pflag.StringP("output", "o", "./gps.txt", "file the raw NMEA lines are written to")
	duration := pflag.DurationP("duration", "d", 0, "stop after this long, 0 records until interrupted")
	pflag.Parse()

	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrusr.New(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	f, err := os.Create(*out)
	if err != nil {
		log.Error(err, "Can't Open GPS File", "file", *out)
		os.Exit(1)
	}
	defer f.Close()

	ch, err := channel.OpenSerial(channel.SerialOptions{Port: *port, Baud: *baud, Driver: *driver})
	if err != nil {
		log.Error(err, "Can't Open GPS Serial Port")
		return
	}
	defer ch.Close()

	fmt.Printf("Capturing Serial Port Data\n")
	fmt.Printf("Press Ctrl-C to exit\n")
	n, err := record(ctx, ch, f, *duration, time.Now, log)
	if err != nil {
		log.Error(err, "Recording Stopped")
	}
	log.Info("Recording Finished", "lines", n, "file", *out)
}
