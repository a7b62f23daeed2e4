package grpc

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"stayfinder/internal/booking"
	"stayfinder/internal/booking/saga"
	"stayfinder/internal/inventory"
)

func TestBookingServerImplementsBookingServiceServer(t *testing.T) {
	var _ BookingServiceServer = (*BookingServer)(nil)
}

type spyBookingService struct {
	bookingID string
	cp        saga.Checkpoint
	err       error

	gotRequest booking.Request
	gotID      string
}

func (s *spyBookingService) Submit(_ context.Context, req booking.Request) (string, error) {
	s.gotRequest = req
	return s.bookingID, s.err
}

func (s *spyBookingService) Execute(_ context.Context, req booking.Request) (saga.Checkpoint, error) {
	s.gotRequest = req
	return s.cp, s.err
}

func (s *spyBookingService) Get(_ context.Context, bookingID string) (saga.Checkpoint, error) {
	s.gotID = bookingID
	return s.cp, s.err
}

func (s *spyBookingService) Cancel(_ context.Context, bookingID string) (saga.Checkpoint, error) {
	s.gotID = bookingID
	return s.cp, s.err
}

func validRequest() *SubmitBookingRequest {
	return &SubmitBookingRequest{
		HotelID:  "h1",
		RoomID:   "r1",
		StayDate: "2026-09-01",
		CheckIn:  "2026-09-01",
		CheckOut: "2026-09-02",
		UserID:   "u-1",
		Amount:   120,
		Currency: "EUR",
	}
}

func TestSubmitBooking_Success(t *testing.T) {
	svc := &spyBookingService{bookingID: "b-123"}
	server := NewBookingServer(svc)

	resp, err := server.SubmitBooking(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.BookingID != "b-123" || resp.Status != "pending" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if svc.gotRequest.UnitKey.HotelID != "h1" || svc.gotRequest.UserID != "u-1" {
		t.Fatalf("request not forwarded: %+v", svc.gotRequest)
	}
}

func TestSubmitBooking_InvalidRequestRejectedBeforeService(t *testing.T) {
	svc := &spyBookingService{}
	server := NewBookingServer(svc)

	req := validRequest()
	req.UserID = ""
	_, err := server.SubmitBooking(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unexpected status code: %v", status.Code(err))
	}
	if svc.gotRequest.UserID != "" && svc.gotRequest.UnitKey.HotelID != "" {
		t.Fatalf("service should not have been called")
	}
}

func TestExecuteBooking_ReturnsFinalState(t *testing.T) {
	svc := &spyBookingService{cp: saga.Checkpoint{
		BookingID: "b-1",
		UnitKey:   inventory.UnitKey{HotelID: "h1", RoomID: "r1", StayDate: "2026-09-01"},
		Status:    saga.StatusCaptured,
		ConfirmID: "conf-b-1",
	}}
	server := NewBookingServer(svc)

	resp, err := server.ExecuteBooking(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "captured" || resp.ConfirmID != "conf-b-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetBooking_RequiresID(t *testing.T) {
	server := NewBookingServer(&spyBookingService{})

	_, err := server.GetBooking(context.Background(), &GetBookingRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unexpected status code: %v", status.Code(err))
	}
}

func TestCancelBooking_ForwardsID(t *testing.T) {
	svc := &spyBookingService{cp: saga.Checkpoint{BookingID: "b-1", Status: saga.StatusCancelled}}
	server := NewBookingServer(svc)

	resp, err := server.CancelBooking(context.Background(), &CancelBookingRequest{BookingID: "b-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.gotID != "b-1" || resp.Status != "cancelled" {
		t.Fatalf("unexpected: id=%q resp=%+v", svc.gotID, resp)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"sold out", inventory.ErrInsufficientInventory, codes.ResourceExhausted},
		{"contention", inventory.ErrContention, codes.Aborted},
		{"unknown unit", inventory.ErrUnitNotFound, codes.NotFound},
		{"unknown booking", saga.ErrNotFound, codes.NotFound},
		{"duplicate saga", saga.ErrAlreadyExists, codes.AlreadyExists},
		{"saga running", booking.ErrSagaRunning, codes.FailedPrecondition},
		{"already terminal", booking.ErrAlreadyTerminal, codes.FailedPrecondition},
		{"canceled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"generic", errors.New("boom"), codes.Internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := NewBookingServer(&spyBookingService{err: tc.err})
			_, err := server.ExecuteBooking(context.Background(), validRequest())
			if status.Code(err) != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, status.Code(err))
			}
		})
	}
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := jsonCodec{}
	in := validRequest()

	data, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := new(SubmitBookingRequest)
	if err := codec.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestServiceDescMethods(t *testing.T) {
	if bookingServiceDesc.ServiceName != ServiceName {
		t.Fatalf("unexpected service name %q", bookingServiceDesc.ServiceName)
	}
	want := map[string]bool{
		"SubmitBooking":  true,
		"ExecuteBooking": true,
		"GetBooking":     true,
		"CancelBooking":  true,
	}
	if len(bookingServiceDesc.Methods) != len(want) {
		t.Fatalf("expected %d methods, got %d", len(want), len(bookingServiceDesc.Methods))
	}
	for _, m := range bookingServiceDesc.Methods {
		if !want[m.MethodName] {
			t.Fatalf("unexpected method %q", m.MethodName)
		}
	}
}
