/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * File body transfer: drives the file_transfer streaming command
 */

package hidock

import "io"

// fileTransferStep builds the onFrame callback Session.Stream drives
// for a file_transfer download: each non-empty frame body is written
// to w and accounted for in written/onProgress; an empty body or
// expectedLength being reached ends the stream. Factored out of
// DownloadFile so the chunking/progress/early-stop logic can be
// exercised without a live transport.
func fileTransferStep(w io.Writer, filename string, expectedLength uint32, written *uint32,
	onProgress func(received, total uint32)) func(frame *Frame, timedOut bool) (bool, error) {

	return func(frame *Frame, timedOut bool) (bool, error) {
		if timedOut {
			return true, nil
		}

		if len(frame.Body) == 0 {
			return false, nil
		}

		if _, err := w.Write(frame.Body); err != nil {
			return false, NewError(ErrIO, err, "file_transfer: write %s", filename)
		}

		*written += uint32(len(frame.Body))
		if onProgress != nil {
			onProgress(*written, expectedLength)
		}

		if expectedLength > 0 && *written >= expectedLength {
			return false, nil
		}
		return true, nil
	}
}

// DownloadFile streams filename's body from the device into w, one
// frame at a time, so a caller writing to disk never has to hold a
// whole recording in memory. expectedLength, if non-zero, stops the
// transfer as soon as that many bytes have arrived; otherwise an empty
// response frame signals end of stream. cancelled is polled at each
// chunk boundary. Returns the number of bytes written to w before
// either success, cancellation, or a write/transport error.
func (s *Session) DownloadFile(filename string, expectedLength uint32, w io.Writer,
	cancelled func() bool, onProgress func(received, total uint32)) (uint32, error) {

	var written uint32
	step := fileTransferStep(w, filename, expectedLength, &written, onProgress)

	err := s.Stream(CmdFileTransfer, []byte(filename), FileBodyReadTimeout, FileBodyOverallTimeout,
		cancelled, step)

	return written, err
}
