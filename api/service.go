package api

import (
	"fmt"
	"net"
	"time"

	"gocv.io/x/gocv"
)

// FrameData is one frame handed to the session loop. The receiver owns the
// Mat and closes it once the tick is done.
type FrameData struct {
	Timestamp time.Time
	SourceId  string
	FrameId   int64
	Frame     gocv.Mat
}

type Service struct {
	Address string
	Port    string
}

func (s *Service) Target() string {
	return net.JoinHostPort(s.Address, s.Port)
}

func (s *Service) ServiceReachable() error {
	if s.Address == "" || s.Port == "" {
		return fmt.Errorf("service address or port is not set")
	}
	conn, err := net.DialTimeout("tcp", s.Target(), 3*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return nil
}
