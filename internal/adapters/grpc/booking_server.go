package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"stayfinder/internal/booking"
	"stayfinder/internal/booking/saga"
	"stayfinder/internal/inventory"
)

// BookingService defines the orchestrator behavior needed by the adapter.
type BookingService interface {
	Submit(ctx context.Context, req booking.Request) (string, error)
	Execute(ctx context.Context, req booking.Request) (saga.Checkpoint, error)
	Get(ctx context.Context, bookingID string) (saga.Checkpoint, error)
	Cancel(ctx context.Context, bookingID string) (saga.Checkpoint, error)
}

// BookingServer adapts BookingService to gRPC.
type BookingServer struct {
	service BookingService
}

// NewBookingServer constructs a BookingServer.
func NewBookingServer(svc BookingService) *BookingServer {
	return &BookingServer{service: svc}
}

// SubmitBooking admits the booking and returns before the saga finishes.
func (s *BookingServer) SubmitBooking(ctx context.Context, req *SubmitBookingRequest) (*SubmitBookingResponse, error) {
	domainReq := toDomainRequest(req)
	if err := domainReq.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	bookingID, err := s.service.Submit(ctx, domainReq)
	if err != nil {
		return nil, mapBookingError(err)
	}
	return &SubmitBookingResponse{BookingID: bookingID, Status: string(saga.StatusPending)}, nil
}

// ExecuteBooking drives the saga to its outcome before responding.
func (s *BookingServer) ExecuteBooking(ctx context.Context, req *SubmitBookingRequest) (*BookingStatusResponse, error) {
	domainReq := toDomainRequest(req)
	if err := domainReq.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	cp, err := s.service.Execute(ctx, domainReq)
	if err != nil {
		return nil, mapBookingError(err)
	}
	return toStatusResponse(cp), nil
}

// GetBooking returns the booking's current saga state.
func (s *BookingServer) GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingStatusResponse, error) {
	if req.BookingID == "" {
		return nil, status.Error(codes.InvalidArgument, "booking_id is required")
	}
	cp, err := s.service.Get(ctx, req.BookingID)
	if err != nil {
		return nil, mapBookingError(err)
	}
	return toStatusResponse(cp), nil
}

// CancelBooking cancels a non-terminal booking.
func (s *BookingServer) CancelBooking(ctx context.Context, req *CancelBookingRequest) (*BookingStatusResponse, error) {
	if req.BookingID == "" {
		return nil, status.Error(codes.InvalidArgument, "booking_id is required")
	}
	cp, err := s.service.Cancel(ctx, req.BookingID)
	if err != nil {
		return nil, mapBookingError(err)
	}
	return toStatusResponse(cp), nil
}

func toDomainRequest(req *SubmitBookingRequest) booking.Request {
	return booking.Request{
		UnitKey: inventory.UnitKey{
			HotelID:  req.HotelID,
			RoomID:   req.RoomID,
			StayDate: req.StayDate,
		},
		Dates:    booking.DateRange{CheckIn: req.CheckIn, CheckOut: req.CheckOut},
		UserID:   req.UserID,
		Amount:   req.Amount,
		Currency: req.Currency,
	}
}

func toStatusResponse(cp saga.Checkpoint) *BookingStatusResponse {
	return &BookingStatusResponse{
		BookingID:     cp.BookingID,
		HotelID:       cp.UnitKey.HotelID,
		RoomID:        cp.UnitKey.RoomID,
		StayDate:      cp.UnitKey.StayDate,
		UserID:        cp.UserID,
		Amount:        cp.Amount,
		Currency:      cp.Currency,
		Status:        string(cp.Status),
		SupplierRef:   cp.SupplierRef,
		PaymentRef:    cp.PaymentRef,
		ConfirmID:     cp.ConfirmID,
		AlertRaised:   cp.AlertRaised,
		FailureReason: cp.FailureReason,
		CreatedAt:     cp.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     cp.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapBookingError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, inventory.ErrInsufficientInventory):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, inventory.ErrContention):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, inventory.ErrUnitNotFound), errors.Is(err, saga.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, saga.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, booking.ErrSagaRunning), errors.Is(err, booking.ErrAlreadyTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
